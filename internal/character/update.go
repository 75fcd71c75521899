package character

import (
	"maps"
	"slices"
)

// Update is a partial character update. A nil field means "leave unchanged".
type Update struct {
	CurrentHP *int
	MaxHP     *int
	CurrentWP *int
	MaxWP     *int

	Attributes      map[Attribute]int // replaces the whole map when non-nil
	Conditions      *Conditions
	SkillLevels     map[string]int // replaces the whole map when non-nil
	HeroicAbilities []string       // replaces the whole list when non-nil
	Spells          *Spells

	DeathRollsPassed *int
	DeathRollsFailed *int
	IsRallied        *bool

	Teacher      *string
	ClearTeacher bool // sets Teacher to nil; wins over Teacher

	Equipment  *Equipment
	Notes      *string
	Appearance *string
	Memento    *string
	Flaw       *string
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.CurrentHP == nil && u.MaxHP == nil && u.CurrentWP == nil && u.MaxWP == nil &&
		u.Attributes == nil && u.Conditions == nil && u.SkillLevels == nil &&
		u.HeroicAbilities == nil && u.Spells == nil &&
		u.DeathRollsPassed == nil && u.DeathRollsFailed == nil && u.IsRallied == nil &&
		u.Teacher == nil && !u.ClearTeacher && u.Equipment == nil &&
		u.Notes == nil && u.Appearance == nil && u.Memento == nil && u.Flaw == nil
}

// Apply returns a new Character with the update merged in. c is not modified.
func (u Update) Apply(c Character) Character {
	out := c.Clone()
	setIf(&out.CurrentHP, u.CurrentHP)
	setIf(&out.MaxHP, u.MaxHP)
	setIf(&out.CurrentWP, u.CurrentWP)
	setIf(&out.MaxWP, u.MaxWP)
	if u.Attributes != nil {
		out.Attributes = maps.Clone(u.Attributes)
	}
	setIf(&out.Conditions, u.Conditions)
	if u.SkillLevels != nil {
		out.SkillLevels = maps.Clone(u.SkillLevels)
	}
	if u.HeroicAbilities != nil {
		out.HeroicAbilities = slices.Clone(u.HeroicAbilities)
	}
	if u.Spells != nil {
		out.Spells = u.Spells.Clone()
	}
	setIf(&out.DeathRollsPassed, u.DeathRollsPassed)
	setIf(&out.DeathRollsFailed, u.DeathRollsFailed)
	setIf(&out.IsRallied, u.IsRallied)
	switch {
	case u.ClearTeacher:
		out.Teacher = nil
	case u.Teacher != nil:
		out.Teacher = clonePtr(u.Teacher)
	}
	if u.Equipment != nil {
		out.Equipment = u.Equipment.Clone()
	}
	setIf(&out.Notes, u.Notes)
	setIf(&out.Appearance, u.Appearance)
	setIf(&out.Memento, u.Memento)
	setIf(&out.Flaw, u.Flaw)
	return out
}

// Merge layers other on top of u; fields set in other win.
func (u Update) Merge(other Update) Update {
	out := u
	mergeIf(&out.CurrentHP, other.CurrentHP)
	mergeIf(&out.MaxHP, other.MaxHP)
	mergeIf(&out.CurrentWP, other.CurrentWP)
	mergeIf(&out.MaxWP, other.MaxWP)
	if other.Attributes != nil {
		out.Attributes = other.Attributes
	}
	mergeIf(&out.Conditions, other.Conditions)
	if other.SkillLevels != nil {
		out.SkillLevels = other.SkillLevels
	}
	if other.HeroicAbilities != nil {
		out.HeroicAbilities = other.HeroicAbilities
	}
	mergeIf(&out.Spells, other.Spells)
	mergeIf(&out.DeathRollsPassed, other.DeathRollsPassed)
	mergeIf(&out.DeathRollsFailed, other.DeathRollsFailed)
	mergeIf(&out.IsRallied, other.IsRallied)
	if other.ClearTeacher {
		out.ClearTeacher = true
		out.Teacher = nil
	} else if other.Teacher != nil {
		out.ClearTeacher = false
		out.Teacher = other.Teacher
	}
	mergeIf(&out.Equipment, other.Equipment)
	mergeIf(&out.Notes, other.Notes)
	mergeIf(&out.Appearance, other.Appearance)
	mergeIf(&out.Memento, other.Memento)
	mergeIf(&out.Flaw, other.Flaw)
	return out
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func mergeIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
