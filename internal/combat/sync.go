// Package combat keeps a character's view of the party's active encounter in sync
// with the shared combatant roster.
package combat

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/dice"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/metrics"
)

// NoEncounterMessage is posted when initiative is drawn outside an active encounter.
const NoEncounterMessage = "No active encounter: join an encounter before drawing initiative."

// Gateway is the subset of persistence the sync engine needs.
type Gateway interface {
	GetLatestEncounterForParty(ctx context.Context, partyID string) (*character.Encounter, error)
	ListCombatants(ctx context.Context, encounterID string) ([]character.Combatant, error)
	UpdateCombatant(ctx context.Context, id string, u character.CombatantUpdate) (*character.Combatant, error)
}

// StatusPoster receives refusal messages.
type StatusPoster interface {
	Post(msg string)
}

// Observer is notified after a combatant write has been acknowledged.
type Observer interface {
	CombatantUpdated(c character.Combatant, u character.CombatantUpdate)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(c character.Combatant, u character.CombatantUpdate)

// CombatantUpdated implements Observer.
func (f ObserverFunc) CombatantUpdated(c character.Combatant, u character.CombatantUpdate) {
	f(c, u)
}

// Snapshot is a copy of the encounter state.
type Snapshot struct {
	Encounter *character.Encounter `json:"encounter"`
	// Combatant is the loaded character's own row, if any
	Combatant *character.Combatant  `json:"combatant"`
	Roster    []character.Combatant `json:"roster"`
	Err       error                 `json:"-"`
	Error     string                `json:"error,omitempty"`
}

// InitiativeOutcome reports a DrawInitiative call.
type InitiativeOutcome struct {
	Refused   bool                 `json:"refused"`
	Message   string               `json:"message,omitempty"`
	Roll      int                  `json:"roll,omitempty"`
	Combatant *character.Combatant `json:"combatant,omitempty"`
}

// Sync holds the active encounter, the current character's combatant, and the roster.
type Sync struct {
	gw      Gateway
	roller  dice.Roller
	status  StatusPoster
	log     *zap.Logger
	metrics *metrics.Metrics

	mu          sync.RWMutex
	seq         uint64
	partyID     string
	characterID string
	encounter   *character.Encounter
	combatantID string
	roster      []character.Combatant
	err         error
	observers   []Observer
}

// New creates an empty Sync. log and m may be nil.
func New(gw Gateway, roller dice.Roller, status StatusPoster, log *zap.Logger, m *metrics.Metrics) *Sync {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sync{
		gw:      gw,
		roller:  roller,
		status:  status,
		log:     log.Named("combat"),
		metrics: m,
	}
}

// Subscribe registers o for combatant updates.
func (s *Sync) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// FetchActiveEncounter loads the party's latest encounter. If there is none, or it is not
// active, all encounter state is cleared. Failures are kept in the encounter error and
// returned; they never touch character state.
func (s *Sync) FetchActiveEncounter(ctx context.Context, partyID, characterID string) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.partyID, s.characterID = partyID, characterID
	s.mu.Unlock()

	enc, err := s.gw.GetLatestEncounterForParty(ctx, partyID)
	if err != nil {
		return s.fail(seq, "fetch encounter", err)
	}
	if enc == nil || !enc.Active() {
		s.mu.Lock()
		if s.seq == seq {
			s.resetLocked()
		}
		s.mu.Unlock()
		return nil
	}

	combatants, err := s.gw.ListCombatants(ctx, enc.ID)
	if err != nil {
		return s.fail(seq, "list combatants", err)
	}
	SortRoster(combatants)

	var mine string
	for _, c := range combatants {
		if c.LinkedTo(characterID) {
			mine = c.ID
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		// a newer fetch or Clear superseded this one
		return nil
	}
	s.encounter = enc
	s.roster = combatants
	s.combatantID = mine
	s.err = nil
	s.log.Debug("encounter loaded",
		zap.String("encounter_id", enc.ID),
		zap.Int("combatants", len(combatants)),
		zap.Bool("participating", mine != ""))
	return nil
}

// Refresh re-fetches the encounter for the last party and character.
func (s *Sync) Refresh(ctx context.Context) error {
	s.mu.RLock()
	partyID, characterID := s.partyID, s.characterID
	s.mu.RUnlock()

	if partyID == "" {
		s.Clear()
		return nil
	}
	return s.FetchActiveEncounter(ctx, partyID, characterID)
}

// Clear drops all encounter state and forgets the party.
func (s *Sync) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.partyID, s.characterID = "", ""
	s.resetLocked()
}

func (s *Sync) resetLocked() {
	s.encounter = nil
	s.combatantID = ""
	s.roster = nil
	s.err = nil
}

func (s *Sync) fail(seq uint64, what string, err error) error {
	s.log.Error(what+" failed", zap.Error(err))
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == seq {
		s.err = err
	}
	return err
}

// Snapshot returns a deep copy of the encounter state.
func (s *Sync) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Err: s.err}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	if s.encounter != nil {
		enc := *s.encounter
		snap.Encounter = &enc
	}
	snap.Roster = make([]character.Combatant, len(s.roster))
	for i, c := range s.roster {
		snap.Roster[i] = c.Clone()
		if c.ID == s.combatantID {
			mine := c.Clone()
			snap.Combatant = &mine
		}
	}
	return snap
}

// DrawInitiative rolls a d10 and stores it on the current character's combatant.
// Without an active encounter or combatant it posts NoEncounterMessage and writes nothing.
func (s *Sync) DrawInitiative(ctx context.Context) (InitiativeOutcome, error) {
	s.mu.RLock()
	active := s.encounter != nil && s.encounter.Active()
	id := s.combatantID
	s.mu.RUnlock()

	if !active || id == "" {
		s.log.Info("initiative refused", zap.Bool("active_encounter", active))
		s.metrics.RecordRefusal("no_encounter")
		if s.status != nil {
			s.status.Post(NoEncounterMessage)
		}
		return InitiativeOutcome{Refused: true, Message: NoEncounterMessage}, nil
	}

	roll := dice.D10(s.roller)
	c, err := s.UpdateCombatant(ctx, id, character.CombatantUpdate{InitiativeRoll: &roll})
	if err != nil {
		return InitiativeOutcome{}, err
	}
	return InitiativeOutcome{Roll: roll, Combatant: c}, nil
}

// SetInitiativeForCombatant stores a chosen initiative value in [1,10] on any combatant.
func (s *Sync) SetInitiativeForCombatant(ctx context.Context, id string, value int) (*character.Combatant, error) {
	if value < character.MinInitiative || value > character.MaxInitiative {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("initiative must be between %d and %d (got %d)",
			character.MinInitiative, character.MaxInitiative, value))
	}
	return s.UpdateCombatant(ctx, id, character.CombatantUpdate{InitiativeRoll: &value})
}

// UpdateCombatant writes u, then merges it into the roster and notifies observers.
// Nothing local changes unless the write succeeds.
func (s *Sync) UpdateCombatant(ctx context.Context, id string, u character.CombatantUpdate) (*character.Combatant, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("combatant id is required")
	}
	if u.IsEmpty() {
		return nil, errors.NewInvalidRequest("combatant update is empty")
	}

	stored, err := s.gw.UpdateCombatant(ctx, id, u)
	if err != nil {
		s.log.Error("update combatant failed", zap.String("combatant_id", id), zap.Error(err))
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	merged := stored.Clone()
	if i := slices.IndexFunc(s.roster, func(c character.Combatant) bool { return c.ID == id }); i >= 0 {
		merged = u.Apply(s.roster[i])
		s.roster[i] = merged
		SortRoster(s.roster)
	}
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.CombatantUpdated(merged.Clone(), u)
	}

	out := merged.Clone()
	return &out, nil
}

// SortRoster orders combatants by ascending initiative with unrolled combatants last.
// Ties keep their relative order.
func SortRoster(roster []character.Combatant) {
	slices.SortStableFunc(roster, func(a, b character.Combatant) int {
		switch {
		case a.InitiativeRoll == nil && b.InitiativeRoll == nil:
			return 0
		case a.InitiativeRoll == nil:
			return 1
		case b.InitiativeRoll == nil:
			return -1
		default:
			return cmp.Compare(*a.InitiativeRoll, *b.InitiativeRoll)
		}
	})
}
