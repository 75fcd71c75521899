package character

import (
	"maps"
	"slices"
)

// MaxSkillLevel is the ceiling for every skill level.
const MaxSkillLevel = 18

// Attribute names a fixed character attribute.
type Attribute string

const (
	AttrStrength     Attribute = "STR"
	AttrConstitution Attribute = "CON"
	AttrAgility      Attribute = "AGL"
	AttrIntelligence Attribute = "INT"
	AttrWillpower    Attribute = "WIL"
	AttrCharisma     Attribute = "CHA"
)

// Attributes lists every attribute in sheet order.
var Attributes = []Attribute{
	AttrStrength, AttrConstitution, AttrAgility,
	AttrIntelligence, AttrWillpower, AttrCharisma,
}

// ValidAttribute reports whether a is one of the six fixed attributes.
func ValidAttribute(a Attribute) bool {
	return slices.Contains(Attributes, a)
}

// Stat selects one of the two tracked pools.
type Stat string

const (
	StatHP Stat = "hp"
	StatWP Stat = "wp"
)

// ValidStat reports whether s is hp or wp.
func ValidStat(s Stat) bool {
	return s == StatHP || s == StatWP
}

// Character is the player-controlled persistent entity.
type Character struct {
	// ID is a ULID that uniquely identifies this character
	ID string `json:"id"`

	// UserID scopes reads to the owning player
	UserID string `json:"user_id"`

	// PartyID is nil when the character is not in a party
	PartyID *string `json:"party_id"`

	Name string `json:"name"`

	CurrentHP int `json:"current_hp"`
	MaxHP     int `json:"max_hp"` // 0 means unset
	CurrentWP int `json:"current_wp"`
	MaxWP     int `json:"max_wp"` // 0 means unset

	Attributes map[Attribute]int `json:"attributes"`
	Conditions Conditions        `json:"conditions"`

	// SkillLevels maps skill name (including magic schools) to a level in [0,18]
	SkillLevels map[string]int `json:"skill_levels"`

	HeroicAbilities []string `json:"heroic_abilities"`
	Spells          Spells   `json:"spells"`

	DeathRollsPassed int  `json:"death_rolls_passed"`
	DeathRollsFailed int  `json:"death_rolls_failed"`
	IsRallied        bool `json:"is_rallied"`

	// Teacher is the skill currently under study (nil when none)
	Teacher *string `json:"teacher"`

	Equipment Equipment `json:"equipment"`

	Notes      string `json:"notes"`
	Appearance string `json:"appearance"`
	Memento    string `json:"memento"`
	Flaw       string `json:"flaw"`

	// CreatedAt and UpdatedAt are Unix timestamps
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// Dying reports whether the character is at or below zero HP.
func (c Character) Dying() bool {
	return c.CurrentHP <= 0
}

// Clone returns a deep copy that shares no maps or slices with c.
func (c Character) Clone() Character {
	out := c
	out.PartyID = clonePtr(c.PartyID)
	out.Teacher = clonePtr(c.Teacher)
	out.Attributes = maps.Clone(c.Attributes)
	out.SkillLevels = maps.Clone(c.SkillLevels)
	out.HeroicAbilities = slices.Clone(c.HeroicAbilities)
	out.Spells = c.Spells.Clone()
	out.Equipment = c.Equipment.Clone()
	return out
}

// SchoolSpells is a character's primary magic school and the spells learned in it.
type SchoolSpells struct {
	Name   string   `json:"name"`
	Spells []string `json:"spells"`
}

// Spells holds school spells plus general (schoolless) spells.
type Spells struct {
	School  *SchoolSpells `json:"school"`
	General []string      `json:"general"`
}

// Clone returns a deep copy.
func (s Spells) Clone() Spells {
	out := Spells{General: slices.Clone(s.General)}
	if s.School != nil {
		out.School = &SchoolSpells{
			Name:   s.School.Name,
			Spells: slices.Clone(s.School.Spells),
		}
	}
	return out
}

// Knows reports whether a spell with this name is in either list.
func (s Spells) Knows(name string) bool {
	if slices.Contains(s.General, name) {
		return true
	}
	return s.School != nil && slices.Contains(s.School.Spells, name)
}

// Spell is a spell being learned. School is empty for general spells.
type Spell struct {
	Name   string `json:"name"`
	School string `json:"school,omitempty"`
}

// MagicSchool identifies a school of magic.
type MagicSchool struct {
	Name string `json:"name"`
}

// InventoryItem is one carried item stack.
type InventoryItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Money is the purse in gold/silver/copper.
type Money struct {
	Gold   int `json:"gold"`
	Silver int `json:"silver"`
	Copper int `json:"copper"`
}

// Equipment is inventory, equipped slots, and money.
type Equipment struct {
	Inventory []InventoryItem `json:"inventory"`
	// Equipped maps slot name (armor, helmet, weapon1...) to item name
	Equipped map[string]string `json:"equipped"`
	Money    Money             `json:"money"`
}

// Clone returns a deep copy.
func (e Equipment) Clone() Equipment {
	return Equipment{
		Inventory: slices.Clone(e.Inventory),
		Equipped:  maps.Clone(e.Equipped),
		Money:     e.Money,
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
