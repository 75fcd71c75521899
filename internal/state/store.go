// Package state owns the single active character and its save/load lifecycle.
//
// Every mutator is a read-modify-write round trip: it snapshots the character,
// asks the rules package for an update, writes it through the gateway, and only
// then merges it into memory. Mutators on one Store are serialized.
package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/catalog"
	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/dice"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/metrics"
	"github.com/hpungsan/hearth/internal/rules"
)

// Gateway is the subset of persistence the store needs.
type Gateway interface {
	GetCharacter(ctx context.Context, id, userID string) (*character.Character, error)
	UpdateCharacter(ctx context.Context, id string, u character.Update) (int64, error)
	IncreaseMaxStat(ctx context.Context, id string, stat character.Stat) (int, int64, error)
}

// StatusBoard shows transient messages.
type StatusBoard interface {
	Post(msg string)
	Current() string
}

// Options configures a Store. Only Gateway is required.
type Options struct {
	Gateway   Gateway
	Encounter *combat.Sync
	Catalog   *catalog.Loader
	Status    StatusBoard
	Roller    dice.Roller
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

// Store holds the active character.
type Store struct {
	gw      Gateway
	enc     *combat.Sync
	catalog *catalog.Loader
	status  StatusBoard
	roller  dice.Roller
	log     *zap.Logger
	metrics *metrics.Metrics

	// writeMu serializes mutators so overlapping updates cannot drop each other's fields
	writeMu sync.Mutex

	mu      sync.RWMutex
	char    *character.Character
	loading bool
	loadErr error
	saveErr error
}

// New creates a Store and subscribes it to combatant updates from opts.Encounter.
func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		gw:      opts.Gateway,
		enc:     opts.Encounter,
		catalog: opts.Catalog,
		status:  opts.Status,
		roller:  opts.Roller,
		log:     log.Named("state"),
		metrics: opts.Metrics,
	}
	if s.roller == nil {
		s.roller = defaultRoller()
	}
	if s.enc != nil {
		s.enc.Subscribe(combat.ObserverFunc(s.mirrorCombatant))
	}
	return s
}

// Load fetches the character owned by userID and makes it active.
// On failure the previous character stays active and LoadError is set.
func (s *Store) Load(ctx context.Context, characterID, userID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.loading = true
	s.loadErr = nil
	s.mu.Unlock()

	c, err := s.gw.GetCharacter(ctx, characterID, userID)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.loadErr = err
		s.mu.Unlock()
		s.log.Error("load character failed", zap.String("character_id", characterID), zap.Error(err))
		return err
	}
	loaded := c.Clone()
	s.char = &loaded
	s.saveErr = nil
	s.mu.Unlock()

	s.log.Info("character loaded", zap.String("character_id", loaded.ID), zap.String("name", loaded.Name))
	s.afterSwitch(ctx, loaded)
	return nil
}

// Replace makes c the active character without reading storage.
func (s *Store) Replace(ctx context.Context, c character.Character) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := c.Clone()
	s.mu.Lock()
	s.char = &next
	s.loadErr = nil
	s.saveErr = nil
	s.mu.Unlock()

	s.afterSwitch(ctx, next)
}

// afterSwitch loads the catalogs once per process and syncs the party's encounter.
// Neither failure affects the character.
func (s *Store) afterSwitch(ctx context.Context, c character.Character) {
	if s.catalog != nil {
		if err := s.catalog.Ensure(ctx); err != nil {
			s.log.Warn("catalog unavailable", zap.Error(err))
		}
	}
	if s.enc == nil {
		return
	}
	if c.PartyID == nil || *c.PartyID == "" {
		s.enc.Clear()
		return
	}
	if err := s.enc.FetchActiveEncounter(ctx, *c.PartyID, c.ID); err != nil {
		s.log.Warn("encounter sync failed", zap.String("party_id", *c.PartyID), zap.Error(err))
	}
}

// Save writes u and merges it into the active character.
//
// An update that would break an invariant is dropped: nothing is written,
// a warning is logged, and Save returns nil.
func (s *Store) Save(ctx context.Context, u character.Update) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.saveLocked(ctx, u)
}

// saveLocked must be called with writeMu held.
func (s *Store) saveLocked(ctx context.Context, u character.Update) error {
	cur, ok := s.Character()
	if !ok {
		return errNoCharacter()
	}
	if u.IsEmpty() {
		return nil
	}

	if err := rules.CheckInvariants(cur, u); err != nil {
		s.log.Warn("update refused by invariant guard", zap.String("character_id", cur.ID), zap.Error(err))
		s.metrics.RecordInvariantGuard()
		return nil
	}

	updatedAt, err := s.gw.UpdateCharacter(ctx, cur.ID, u)
	if err != nil {
		s.mu.Lock()
		s.saveErr = err
		s.mu.Unlock()
		s.log.Error("save character failed", zap.String("character_id", cur.ID), zap.Error(err))
		s.metrics.RecordSave(false)
		return err
	}

	s.mu.Lock()
	if s.char != nil && s.char.ID == cur.ID {
		next := u.Apply(*s.char)
		next.UpdatedAt = updatedAt
		s.char = &next
	}
	s.saveErr = nil
	s.mu.Unlock()

	s.metrics.RecordSave(true)
	return nil
}

// mutate runs fn against the current character and saves its update if anything changed.
func (s *Store) mutate(ctx context.Context, fn func(c character.Character) (character.Update, bool, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, ok := s.Character()
	if !ok {
		return errNoCharacter()
	}
	u, changed, err := fn(cur)
	if err != nil || !changed {
		return err
	}
	return s.saveLocked(ctx, u)
}

// IncreaseMaxStat raises max_hp or max_wp by one and returns the new maximum.
func (s *Store) IncreaseMaxStat(ctx context.Context, stat character.Stat) (int, error) {
	if !character.ValidStat(stat) {
		return 0, errors.NewInvalidRequest("stat must be one of: hp, wp")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur, ok := s.Character()
	if !ok {
		return 0, errNoCharacter()
	}

	newMax, updatedAt, err := s.gw.IncreaseMaxStat(ctx, cur.ID, stat)
	if err != nil {
		s.mu.Lock()
		s.saveErr = err
		s.mu.Unlock()
		s.log.Error("increase max stat failed", zap.String("character_id", cur.ID), zap.String("stat", string(stat)), zap.Error(err))
		s.metrics.RecordSave(false)
		return 0, err
	}

	s.mu.Lock()
	if s.char != nil && s.char.ID == cur.ID {
		next := s.char.Clone()
		if stat == character.StatHP {
			next.MaxHP = newMax
		} else {
			next.MaxWP = newMax
		}
		next.UpdatedAt = updatedAt
		s.char = &next
	}
	s.saveErr = nil
	s.mu.Unlock()

	s.metrics.RecordSave(true)
	return newMax, nil
}

// mirrorCombatant projects hp/wp from a combatant write onto the active character
// when the combatant is linked to it. No other field is touched, and nothing is persisted.
func (s *Store) mirrorCombatant(c character.Combatant, u character.CombatantUpdate) {
	if u.CurrentHP == nil && u.CurrentWP == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.char == nil || !c.LinkedTo(s.char.ID) {
		return
	}

	next := s.char.Clone()
	if u.CurrentHP != nil {
		next.CurrentHP = min(max(*u.CurrentHP, 0), next.MaxHP)
	}
	if u.CurrentWP != nil {
		next.CurrentWP = min(max(*u.CurrentWP, 0), next.MaxWP)
	}
	s.char = &next
	s.log.Debug("mirrored combatant",
		zap.String("combatant_id", c.ID),
		zap.Int("current_hp", next.CurrentHP),
		zap.Int("current_wp", next.CurrentWP))
}

// Character returns a deep copy of the active character.
func (s *Store) Character() (character.Character, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.char == nil {
		return character.Character{}, false
	}
	return s.char.Clone(), true
}

// Loading reports whether a Load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// LoadError returns the error from the last failed Load.
func (s *Store) LoadError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

// SaveError returns the error from the last failed write.
func (s *Store) SaveError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveErr
}

// Status returns the live status message, or "".
func (s *Store) Status() string {
	if s.status == nil {
		return ""
	}
	return s.status.Current()
}

// Encounter returns the encounter sync engine (nil if none was configured).
func (s *Store) Encounter() *combat.Sync {
	return s.enc
}

// Catalog returns the catalog loader (nil if none was configured).
func (s *Store) Catalog() *catalog.Loader {
	return s.catalog
}

func (s *Store) post(msg string) {
	if s.status != nil && msg != "" {
		s.status.Post(msg)
	}
}

func defaultRoller() dice.Roller {
	if r, err := dice.NewSeeded(); err == nil {
		return r
	}
	return dice.New(uint64(time.Now().UnixNano()))
}

func errNoCharacter() error {
	return errors.NewInvalidRequest("no character loaded")
}
