// Package rules encodes the numeric game rules as pure functions.
//
// Every function takes the current character and returns a character.Update
// describing the change; nothing here talks to storage. A false "changed"
// result means the caller must not write anything.
package rules

import (
	"fmt"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
)

// DeathRollKind selects one side of the death-roll pair.
type DeathRollKind string

const (
	DeathRollPassed DeathRollKind = "passed"
	DeathRollFailed DeathRollKind = "failed"
)

// AdjustStat applies delta to HP or WP, clamped into [0, max].
// Healing from <=0 to >0 HP also resets death rolls and the rallied flag.
func AdjustStat(c character.Character, stat character.Stat, delta int) (character.Update, bool, error) {
	var upd character.Update

	switch stat {
	case character.StatHP:
		next := clamp(c.CurrentHP+delta, 0, c.MaxHP)
		if next == c.CurrentHP {
			return upd, false, nil
		}
		upd.CurrentHP = &next
		if c.CurrentHP <= 0 && next > 0 {
			upd = upd.Merge(resetDeathRolls())
		}
	case character.StatWP:
		next := clamp(c.CurrentWP+delta, 0, c.MaxWP)
		if next == c.CurrentWP {
			return upd, false, nil
		}
		upd.CurrentWP = &next
	default:
		return upd, false, errors.NewInvalidRequest(fmt.Sprintf("stat must be one of: hp, wp (got %q)", stat))
	}

	return upd, true, nil
}

// ToggleCondition flips exactly one of the six condition flags.
func ToggleCondition(c character.Character, name character.Condition) (character.Update, error) {
	if !character.ValidCondition(name) {
		return character.Update{}, errors.NewInvalidRequest(fmt.Sprintf("unknown condition %q", name))
	}
	conds := c.Conditions.With(name, !c.Conditions.Get(name))
	return character.Update{Conditions: &conds}, nil
}

// SetDeathRollState sets both death-roll counters. rallied is left untouched when nil.
func SetDeathRollState(successes, failures int, rallied *bool) (character.Update, error) {
	if successes < 0 || failures < 0 {
		return character.Update{}, errors.NewInvalidRequest("death roll counters must be non-negative")
	}
	upd := character.Update{
		DeathRollsPassed: &successes,
		DeathRollsFailed: &failures,
	}
	if rallied != nil {
		r := *rallied
		upd.IsRallied = &r
	}
	return upd, nil
}

// UpdateDeathRolls sets one side of the pair, preserving the other side and the rallied flag.
func UpdateDeathRolls(c character.Character, kind DeathRollKind, value int) (character.Update, error) {
	successes, failures := c.DeathRollsPassed, c.DeathRollsFailed
	switch kind {
	case DeathRollPassed:
		successes = value
	case DeathRollFailed:
		failures = value
	default:
		return character.Update{}, errors.NewInvalidRequest(fmt.Sprintf("death roll kind must be one of: passed, failed (got %q)", kind))
	}
	rallied := c.IsRallied
	return SetDeathRollState(successes, failures, &rallied)
}

func resetDeathRolls() character.Update {
	return character.Update{
		DeathRollsPassed: character.Ptr(0),
		DeathRollsFailed: character.Ptr(0),
		IsRallied:        character.Ptr(false),
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	return min(max(v, lo), hi)
}
