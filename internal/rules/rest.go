package rules

import (
	"fmt"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/dice"
	"github.com/hpungsan/hearth/internal/errors"
)

// RestKind is one of the three recovery tiers.
type RestKind string

const (
	RestRound   RestKind = "round"
	RestStretch RestKind = "stretch"
	RestShift   RestKind = "shift"
)

// StretchWhileDyingMessage is posted when a stretch rest is refused at 0 HP.
const StretchWhileDyingMessage = "You cannot take a stretch rest at 0 HP. Make death rolls or get healed first."

// RestOutcome captures a rest's rolls and resulting update.
type RestOutcome struct {
	Kind    RestKind         `json:"kind"`
	Update  character.Update `json:"-"`
	Refused bool             `json:"refused"`
	Message string           `json:"message"`

	HPRolls          []int               `json:"hp_rolls,omitempty"`
	WPRoll           int                 `json:"wp_roll,omitempty"`
	HPGained         int                 `json:"hp_gained"`
	WPGained         int                 `json:"wp_gained"`
	ClearedCondition character.Condition `json:"cleared_condition,omitempty"`
}

// Rest resolves one rest tier.
//
//   - round: WP += d6, capped at max_wp.
//   - stretch: refused at <=0 HP. Otherwise HP += d6 (2d6 with a healer), WP += d6,
//     and the first active condition in fixed order is cleared.
//   - shift: HP and WP to max, conditions cleared, death rolls reset.
func Rest(c character.Character, kind RestKind, healerPresent bool, r dice.Roller) (RestOutcome, error) {
	out := RestOutcome{Kind: kind}

	switch kind {
	case RestRound:
		out.WPRoll = dice.D6(r)
		wp := min(c.CurrentWP+out.WPRoll, c.MaxWP)
		out.WPGained = max(wp-c.CurrentWP, 0)
		out.Update.CurrentWP = character.Ptr(max(wp, c.CurrentWP))
		out.Message = fmt.Sprintf("Round rest: recovered %d WP.", out.WPGained)

	case RestStretch:
		if c.Dying() {
			out.Refused = true
			out.Message = StretchWhileDyingMessage
			return out, nil
		}

		out.HPRolls = []int{dice.D6(r)}
		if healerPresent {
			out.HPRolls = append(out.HPRolls, dice.D6(r))
		}
		heal := 0
		for _, v := range out.HPRolls {
			heal += v
		}
		hp := min(c.CurrentHP+heal, c.MaxHP)
		out.HPGained = max(hp-c.CurrentHP, 0)
		out.Update.CurrentHP = character.Ptr(max(hp, c.CurrentHP))

		out.WPRoll = dice.D6(r)
		wp := min(c.CurrentWP+out.WPRoll, c.MaxWP)
		out.WPGained = max(wp-c.CurrentWP, 0)
		out.Update.CurrentWP = character.Ptr(max(wp, c.CurrentWP))

		if cond, ok := c.Conditions.FirstActive(); ok {
			conds := c.Conditions.With(cond, false)
			out.Update.Conditions = &conds
			out.ClearedCondition = cond
		}
		out.Message = fmt.Sprintf("Stretch rest: recovered %d HP and %d WP.", out.HPGained, out.WPGained)
		if out.ClearedCondition != "" {
			out.Message += fmt.Sprintf(" No longer %s.", out.ClearedCondition)
		}

	case RestShift:
		out.HPGained = max(c.MaxHP-c.CurrentHP, 0)
		out.WPGained = max(c.MaxWP-c.CurrentWP, 0)
		out.Update = character.Update{
			CurrentHP:  character.Ptr(c.MaxHP),
			CurrentWP:  character.Ptr(c.MaxWP),
			Conditions: &character.Conditions{},
		}.Merge(resetDeathRolls())
		out.Message = "Shift rest: fully recovered."

	default:
		return out, errors.NewInvalidRequest(fmt.Sprintf("rest kind must be one of: round, stretch, shift (got %q)", kind))
	}

	return out, nil
}
