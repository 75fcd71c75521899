package rules

import (
	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
)

// CheckInvariants returns an INVARIANT_GUARD error if applying upd to c would
// break a character invariant. Only the fields upd touches are checked, so a
// row that is already inconsistent can still receive unrelated updates.
func CheckInvariants(c character.Character, upd character.Update) error {
	next := upd.Apply(c)

	if upd.CurrentHP != nil || upd.MaxHP != nil {
		if err := checkPool("current_hp", next.CurrentHP, next.MaxHP); err != nil {
			return err
		}
	}
	if upd.CurrentWP != nil || upd.MaxWP != nil {
		if err := checkPool("current_wp", next.CurrentWP, next.MaxWP); err != nil {
			return err
		}
	}
	if upd.SkillLevels != nil {
		for _, level := range next.SkillLevels {
			if level < 0 {
				return errors.NewInvariantGuard("skill_level", level, 0)
			}
			if level > character.MaxSkillLevel {
				return errors.NewInvariantGuard("skill_level", level, character.MaxSkillLevel)
			}
		}
	}
	if upd.DeathRollsPassed != nil && next.DeathRollsPassed < 0 {
		return errors.NewInvariantGuard("death_rolls_passed", next.DeathRollsPassed, 0)
	}
	if upd.DeathRollsFailed != nil && next.DeathRollsFailed < 0 {
		return errors.NewInvariantGuard("death_rolls_failed", next.DeathRollsFailed, 0)
	}
	return nil
}

func checkPool(field string, current, maximum int) error {
	if maximum < 0 {
		return errors.NewInvariantGuard("max"+field[len("current"):], maximum, 0)
	}
	if current < 0 {
		return errors.NewInvariantGuard(field, current, 0)
	}
	if current > maximum {
		return errors.NewInvariantGuard(field, current, maximum)
	}
	return nil
}
