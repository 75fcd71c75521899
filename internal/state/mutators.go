package state

import (
	"context"

	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/rules"
)

// AdjustStat adds delta to hp or wp, clamped to [0, max]. Unchanged values are not written.
func (s *Store) AdjustStat(ctx context.Context, stat character.Stat, delta int) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		return rules.AdjustStat(c, stat, delta)
	})
}

// ToggleCondition flips one condition.
func (s *Store) ToggleCondition(ctx context.Context, name character.Condition) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		u, err := rules.ToggleCondition(c, name)
		return u, err == nil, err
	})
}

// PerformRest resolves a rest and posts its summary. A refused rest writes nothing,
// posts the refusal, and is reported through the outcome rather than an error.
func (s *Store) PerformRest(ctx context.Context, kind rules.RestKind, healerPresent bool) (rules.RestOutcome, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, ok := s.Character()
	if !ok {
		return rules.RestOutcome{}, errNoCharacter()
	}

	out, err := rules.Rest(cur, kind, healerPresent, s.roller)
	if err != nil {
		return out, err
	}
	if out.Refused {
		s.log.Info("rest refused", zap.String("kind", string(kind)), zap.String("character_id", cur.ID))
		s.metrics.RecordRefusal("rest_" + string(kind))
		s.post(out.Message)
		return out, nil
	}

	if err := s.saveLocked(ctx, out.Update); err != nil {
		return out, err
	}
	s.post(out.Message)
	return out, nil
}

// SetDeathRollState sets both death-roll counters; rallied is untouched when nil.
func (s *Store) SetDeathRollState(ctx context.Context, successes, failures int, rallied *bool) error {
	return s.mutate(ctx, func(character.Character) (character.Update, bool, error) {
		u, err := rules.SetDeathRollState(successes, failures, rallied)
		return u, err == nil, err
	})
}

// UpdateDeathRolls sets one side of the death-roll pair.
func (s *Store) UpdateDeathRolls(ctx context.Context, kind rules.DeathRollKind, value int) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		u, err := rules.UpdateDeathRolls(c, kind, value)
		return u, err == nil, err
	})
}

// UpdateAttribute sets an attribute, deriving max HP/WP the first time CON/WIL is set.
func (s *Store) UpdateAttribute(ctx context.Context, attr character.Attribute, value int) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		u, err := rules.UpdateAttribute(c, attr, value)
		return u, err == nil, err
	})
}

// IncreaseSkillLevel raises a skill by one, up to 18.
func (s *Store) IncreaseSkillLevel(ctx context.Context, name string) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		return rules.IncreaseSkillLevel(c, name)
	})
}

// AddHeroicAbility records a heroic ability if the character lacks it.
func (s *Store) AddHeroicAbility(ctx context.Context, name string) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		return rules.AddHeroicAbility(c, name)
	})
}

// LearnSpell adds a spell to the school or general list. Known spells are not written again.
func (s *Store) LearnSpell(ctx context.Context, spell character.Spell) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		return rules.LearnSpell(c, spell)
	})
}

// AddMagicSchool records a school skill level and sets the primary school if none is set.
func (s *Store) AddMagicSchool(ctx context.Context, school character.MagicSchool, level int) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		return rules.AddMagicSchool(c, school, level)
	})
}

// SetSkillUnderStudy sets or (with nil) clears the skill being studied.
func (s *Store) SetSkillUnderStudy(ctx context.Context, name *string) error {
	return s.mutate(ctx, func(c character.Character) (character.Update, bool, error) {
		u, changed := rules.SetSkillUnderStudy(c, name)
		return u, changed, nil
	})
}
