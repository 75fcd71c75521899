package rules

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
)

// UpdateAttribute sets an attribute. The first time CON (or WIL) is set while
// max_hp (or max_wp) is still unset, the max is derived from it and the
// current value clamped. Later attribute changes never resize max stats.
func UpdateAttribute(c character.Character, attr character.Attribute, value int) (character.Update, error) {
	if !character.ValidAttribute(attr) {
		return character.Update{}, errors.NewInvalidRequest(fmt.Sprintf("unknown attribute %q", attr))
	}
	if value < 0 {
		return character.Update{}, errors.NewInvalidRequest("attribute value must be non-negative")
	}

	attrs := maps.Clone(c.Attributes)
	if attrs == nil {
		attrs = make(map[character.Attribute]int, len(character.Attributes))
	}
	attrs[attr] = value
	upd := character.Update{Attributes: attrs}

	switch {
	case attr == character.AttrConstitution && c.MaxHP == 0:
		upd.MaxHP = character.Ptr(value)
		upd.CurrentHP = character.Ptr(clamp(c.CurrentHP, 0, value))
	case attr == character.AttrWillpower && c.MaxWP == 0:
		upd.MaxWP = character.Ptr(value)
		upd.CurrentWP = character.Ptr(clamp(c.CurrentWP, 0, value))
	}

	return upd, nil
}

// IncreaseSkillLevel raises a skill by one, up to MaxSkillLevel.
// Leveling the skill under study clears the study pointer.
func IncreaseSkillLevel(c character.Character, name string) (character.Update, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return character.Update{}, false, errors.NewInvalidRequest("skill name is required")
	}

	level := c.SkillLevels[name]
	if level >= character.MaxSkillLevel {
		return character.Update{}, false, nil
	}

	skills := maps.Clone(c.SkillLevels)
	if skills == nil {
		skills = make(map[string]int, 1)
	}
	skills[name] = level + 1

	upd := character.Update{SkillLevels: skills}
	if c.Teacher != nil && *c.Teacher == name {
		upd.ClearTeacher = true
	}
	return upd, true, nil
}

// AddHeroicAbility appends an ability unless the character already has it.
func AddHeroicAbility(c character.Character, name string) (character.Update, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return character.Update{}, false, errors.NewInvalidRequest("heroic ability name is required")
	}
	if slices.Contains(c.HeroicAbilities, name) {
		return character.Update{}, false, nil
	}
	abilities := append(slices.Clone(c.HeroicAbilities), name)
	return character.Update{HeroicAbilities: abilities}, true, nil
}

// LearnSpell adds a spell to the school list (when it names a school) or the
// general list. Spells are de-duplicated by name across both lists.
func LearnSpell(c character.Character, spell character.Spell) (character.Update, bool, error) {
	spell.Name = strings.TrimSpace(spell.Name)
	spell.School = strings.TrimSpace(spell.School)
	if spell.Name == "" {
		return character.Update{}, false, errors.NewInvalidRequest("spell name is required")
	}
	if c.Spells.Knows(spell.Name) {
		return character.Update{}, false, nil
	}

	spells := c.Spells.Clone()
	if spell.School != "" {
		if spells.School == nil {
			spells.School = &character.SchoolSpells{Name: spell.School}
		}
		spells.School.Spells = append(spells.School.Spells, spell.Name)
	} else {
		spells.General = append(spells.General, spell.Name)
	}
	return character.Update{Spells: &spells}, true, nil
}

// AddMagicSchool records the school's skill level and makes it the primary
// school if the character has none yet.
func AddMagicSchool(c character.Character, school character.MagicSchool, level int) (character.Update, bool, error) {
	school.Name = strings.TrimSpace(school.Name)
	if school.Name == "" {
		return character.Update{}, false, errors.NewInvalidRequest("magic school name is required")
	}
	level = clamp(level, 0, character.MaxSkillLevel)

	var upd character.Update
	if cur, ok := c.SkillLevels[school.Name]; !ok || cur != level {
		skills := maps.Clone(c.SkillLevels)
		if skills == nil {
			skills = make(map[string]int, 1)
		}
		skills[school.Name] = level
		upd.SkillLevels = skills
	}
	if c.Spells.School == nil {
		spells := c.Spells.Clone()
		spells.School = &character.SchoolSpells{Name: school.Name}
		upd.Spells = &spells
	}
	return upd, !upd.IsEmpty(), nil
}

// SetSkillUnderStudy sets the study pointer; nil or blank clears it.
func SetSkillUnderStudy(c character.Character, name *string) (character.Update, bool) {
	if name == nil || strings.TrimSpace(*name) == "" {
		if c.Teacher == nil {
			return character.Update{}, false
		}
		return character.Update{ClearTeacher: true}, true
	}
	skill := strings.TrimSpace(*name)
	if c.Teacher != nil && *c.Teacher == skill {
		return character.Update{}, false
	}
	return character.Update{Teacher: &skill}, true
}
