package character

// EncounterStatusActive is the only encounter status this engine treats specially.
const EncounterStatusActive = "active"

// Initiative bounds for a drawn or set initiative value.
const (
	MinInitiative = 1
	MaxInitiative = 10
)

// Encounter is a DM-managed combat session scoped to a party.
type Encounter struct {
	ID        string `json:"id"`
	PartyID   string `json:"party_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Active reports whether the encounter is running.
func (e Encounter) Active() bool {
	return e.Status == EncounterStatusActive
}

// Combatant is a per-encounter participant row (character or NPC).
type Combatant struct {
	ID          string  `json:"id"`
	EncounterID string  `json:"encounter_id"`
	CharacterID *string `json:"character_id"` // nil for NPCs
	Name        string  `json:"name"`

	// InitiativeRoll is nil until initiative is drawn
	InitiativeRoll *int `json:"initiative_roll"`

	CurrentHP int `json:"current_hp"`
	CurrentWP int `json:"current_wp"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// LinkedTo reports whether the combatant row belongs to the given character.
func (c Combatant) LinkedTo(characterID string) bool {
	return c.CharacterID != nil && *c.CharacterID == characterID
}

// Clone returns a copy that shares no pointers with c.
func (c Combatant) Clone() Combatant {
	out := c
	out.CharacterID = clonePtr(c.CharacterID)
	out.InitiativeRoll = clonePtr(c.InitiativeRoll)
	return out
}

// CombatantUpdate is a partial combatant update. A nil field means "leave unchanged".
type CombatantUpdate struct {
	InitiativeRoll  *int `json:"initiative_roll,omitempty"`
	ClearInitiative bool `json:"clear_initiative,omitempty"`
	CurrentHP       *int `json:"current_hp,omitempty"`
	CurrentWP       *int `json:"current_wp,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u CombatantUpdate) IsEmpty() bool {
	return u.InitiativeRoll == nil && !u.ClearInitiative && u.CurrentHP == nil && u.CurrentWP == nil
}

// Apply returns a new Combatant with the update merged in.
func (u CombatantUpdate) Apply(c Combatant) Combatant {
	out := c.Clone()
	switch {
	case u.ClearInitiative:
		out.InitiativeRoll = nil
	case u.InitiativeRoll != nil:
		out.InitiativeRoll = clonePtr(u.InitiativeRoll)
	}
	setIf(&out.CurrentHP, u.CurrentHP)
	setIf(&out.CurrentWP, u.CurrentWP)
	return out
}

// Item is a read-only catalog entry for gear.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Weight      int    `json:"weight"`
	Cost        string `json:"cost"`
	Description string `json:"description"`
}

// HeroicAbility is a read-only catalog entry.
type HeroicAbility struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WillpowerCost int    `json:"willpower_cost"`
	Requirement   string `json:"requirement"`
	Description   string `json:"description"`
}
