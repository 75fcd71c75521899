package state

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hpungsan/hearth/internal/catalog"
	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/db"
	"github.com/hpungsan/hearth/internal/dice"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/metrics"
	"github.com/hpungsan/hearth/internal/rules"
	"github.com/hpungsan/hearth/internal/status"
)

// countingGateway counts character writes and can be told to fail them.
type countingGateway struct {
	*db.Gateway
	writes atomic.Int32
	fail   atomic.Bool
}

func (c *countingGateway) UpdateCharacter(ctx context.Context, id string, u character.Update) (int64, error) {
	c.writes.Add(1)
	if c.fail.Load() {
		return 0, errors.NewRemote("update_character", fmt.Errorf("connection refused"))
	}
	return c.Gateway.UpdateCharacter(ctx, id, u)
}

func (c *countingGateway) IncreaseMaxStat(ctx context.Context, id string, stat character.Stat) (int, int64, error) {
	c.writes.Add(1)
	if c.fail.Load() {
		return 0, 0, errors.NewRemote("increase_max_stat", fmt.Errorf("connection refused"))
	}
	return c.Gateway.IncreaseMaxStat(ctx, id, stat)
}

type testEnv struct {
	gw      *countingGateway
	store   *Store
	sync    *combat.Sync
	board   *status.Board
	logs    *observer.ObservedLogs
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, rolls ...int) *testEnv {
	t.Helper()
	sqlDB, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	m := metrics.New("test")
	gw := &countingGateway{Gateway: db.NewGateway(sqlDB, db.SQLite, m)}
	board := status.NewBoard(time.Minute)
	roller := dice.NewSequence(rolls...)
	syncer := combat.New(gw.Gateway, roller, board, log, m)

	store := New(Options{
		Gateway:   gw,
		Encounter: syncer,
		Catalog:   catalog.NewLoader(gw.Gateway, log, m),
		Status:    board,
		Roller:    roller,
		Logger:    log,
		Metrics:   m,
	})
	return &testEnv{gw: gw, store: store, sync: syncer, board: board, logs: logs, metrics: m}
}

// seed inserts c and loads it into the store.
func (e *testEnv) seed(t *testing.T, c character.Character) character.Character {
	t.Helper()
	if c.UserID == "" {
		c.UserID = "user-1"
	}
	if c.Name == "" {
		c.Name = "Wenna"
	}
	require.NoError(t, e.gw.InsertCharacter(context.Background(), &c))
	require.NoError(t, e.store.Load(context.Background(), c.ID, c.UserID))
	return c
}

func (e *testEnv) current(t *testing.T) character.Character {
	t.Helper()
	c, ok := e.store.Character()
	require.True(t, ok)
	return c
}

func (e *testEnv) stored(t *testing.T, id string) character.Character {
	t.Helper()
	c, err := e.gw.GetCharacter(context.Background(), id, "user-1")
	require.NoError(t, err)
	return *c
}

func TestLoad_NotFoundKeepsPreviousCharacter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	prev := env.seed(t, character.Character{MaxHP: 10, CurrentHP: 10})

	err := env.store.Load(ctx, "missing", "user-1")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
	require.Error(t, env.store.LoadError())
	require.False(t, env.store.Loading())
	require.Equal(t, prev.ID, env.current(t).ID)

	// Another player's character is indistinguishable from a missing one.
	err = env.store.Load(ctx, prev.ID, "user-2")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestLoad_TriggersCatalogAndEncounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.gw.InsertHeroicAbility(ctx, &character.HeroicAbility{Name: "Berserker", WillpowerCost: 3}))

	enc := &character.Encounter{PartyID: "party-1", Name: "Bridge troll", Status: character.EncounterStatusActive}
	require.NoError(t, env.gw.InsertEncounter(ctx, enc))

	c := character.Character{ID: db.NewID(), PartyID: character.Ptr("party-1"), MaxHP: 10, CurrentHP: 10}
	require.NoError(t, env.gw.InsertCombatant(ctx, &character.Combatant{EncounterID: enc.ID, CharacterID: &c.ID, Name: "Wenna"}))
	env.seed(t, c)

	require.Equal(t, catalog.Loaded, env.store.Catalog().State())
	_, ok := env.store.Catalog().FindHeroicAbility("Berserker")
	require.True(t, ok)

	snap := env.store.Encounter().Snapshot()
	require.NotNil(t, snap.Encounter)
	require.Equal(t, enc.ID, snap.Encounter.ID)
	require.NotNil(t, snap.Combatant)
}

func TestReplace_WithoutPartyClearsEncounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	enc := &character.Encounter{PartyID: "party-1", Name: "Ambush", Status: character.EncounterStatusActive}
	require.NoError(t, env.gw.InsertEncounter(ctx, enc))
	env.seed(t, character.Character{PartyID: character.Ptr("party-1")})
	require.NotNil(t, env.store.Encounter().Snapshot().Encounter)

	env.store.Replace(ctx, character.Character{ID: "solo", Name: "Loner"})

	require.Nil(t, env.store.Encounter().Snapshot().Encounter)
	require.Equal(t, "solo", env.current(t).ID)
}

func TestAdjustStat_HealingFromZeroResetsDeathRolls(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{MaxHP: 10, CurrentHP: 0, DeathRollsFailed: 2, DeathRollsPassed: 1, IsRallied: true})

	require.NoError(t, env.store.AdjustStat(context.Background(), character.StatHP, 3))

	for _, got := range []character.Character{env.current(t), env.stored(t, c.ID)} {
		require.Equal(t, 3, got.CurrentHP)
		require.Zero(t, got.DeathRollsFailed)
		require.Zero(t, got.DeathRollsPassed)
		require.False(t, got.IsRallied)
	}
}

func TestAdjustStat_NoChangeDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, character.Character{MaxHP: 10, CurrentHP: 10, MaxWP: 5})

	require.NoError(t, env.store.AdjustStat(context.Background(), character.StatHP, 4))
	require.NoError(t, env.store.AdjustStat(context.Background(), character.StatWP, -2))
	require.Zero(t, env.gw.writes.Load())
}

func TestAdjustStat_ConcurrentCallsAreSerialized(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{MaxHP: 20, CurrentHP: 1, MaxWP: 20, CurrentWP: 1})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, env.store.AdjustStat(context.Background(), character.StatHP, 1))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, env.store.AdjustStat(context.Background(), character.StatWP, 1))
		}()
	}
	wg.Wait()

	got := env.stored(t, c.ID)
	require.Equal(t, 9, got.CurrentHP)
	require.Equal(t, 9, got.CurrentWP)
	require.Equal(t, got.CurrentHP, env.current(t).CurrentHP)
}

func TestPerformRest_Round(t *testing.T) {
	env := newTestEnv(t, 4)
	c := env.seed(t, character.Character{MaxWP: 12, CurrentWP: 5, MaxHP: 10, CurrentHP: 10})

	out, err := env.store.PerformRest(context.Background(), rules.RestRound, false)
	require.NoError(t, err)
	require.Equal(t, 4, out.WPRoll)
	require.Equal(t, 9, env.current(t).CurrentWP)
	require.Equal(t, 9, env.stored(t, c.ID).CurrentWP)
	require.Equal(t, out.Message, env.store.Status())
}

func TestPerformRest_StretchWhileDyingIsRefused(t *testing.T) {
	env := newTestEnv(t, 6)
	env.seed(t, character.Character{MaxHP: 10, CurrentHP: 0, MaxWP: 10, CurrentWP: 2})

	out, err := env.store.PerformRest(context.Background(), rules.RestStretch, true)
	require.NoError(t, err)
	require.True(t, out.Refused)
	require.Equal(t, rules.StretchWhileDyingMessage, env.store.Status())
	require.Zero(t, env.gw.writes.Load())
	require.Equal(t, 2, env.current(t).CurrentWP)
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RefusalsTotal.WithLabelValues("rest_stretch")))
}

func TestPerformRest_Shift(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{
		MaxHP: 14, CurrentHP: 0, MaxWP: 9, CurrentWP: 1,
		Conditions:       character.Conditions{Angry: true, Exhausted: true},
		DeathRollsFailed: 2,
	})

	_, err := env.store.PerformRest(context.Background(), rules.RestShift, false)
	require.NoError(t, err)

	got := env.stored(t, c.ID)
	require.Equal(t, 14, got.CurrentHP)
	require.Equal(t, 9, got.CurrentWP)
	require.False(t, got.Conditions.Any())
	require.Zero(t, got.DeathRollsFailed)
}

func TestLearnSpell_TwiceWritesOnce(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{})
	spell := character.Spell{Name: "Fireball", School: "Elementalism"}

	require.NoError(t, env.store.LearnSpell(context.Background(), spell))
	require.NoError(t, env.store.LearnSpell(context.Background(), spell))

	require.EqualValues(t, 1, env.gw.writes.Load())
	got := env.stored(t, c.ID)
	require.NotNil(t, got.Spells.School)
	require.Equal(t, []string{"Fireball"}, got.Spells.School.Spells)
}

func TestIncreaseSkillLevel_ClearsStudy(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{SkillLevels: map[string]int{"Bows": 17}, Teacher: character.Ptr("Bows")})
	ctx := context.Background()

	require.NoError(t, env.store.IncreaseSkillLevel(ctx, "Bows"))
	require.NoError(t, env.store.IncreaseSkillLevel(ctx, "Bows"))

	got := env.stored(t, c.ID)
	require.Equal(t, 18, got.SkillLevels["Bows"])
	require.Nil(t, got.Teacher)
	require.EqualValues(t, 1, env.gw.writes.Load(), "the call at the cap is a no-op")
}

func TestProgression(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{CurrentHP: 5})
	ctx := context.Background()

	require.NoError(t, env.store.UpdateAttribute(ctx, character.AttrConstitution, 13))
	require.NoError(t, env.store.UpdateAttribute(ctx, character.AttrWillpower, 11))
	require.NoError(t, env.store.AddHeroicAbility(ctx, "Veteran"))
	require.NoError(t, env.store.AddHeroicAbility(ctx, "Veteran"))
	require.NoError(t, env.store.AddMagicSchool(ctx, character.MagicSchool{Name: "Animism"}, 10))
	require.NoError(t, env.store.SetSkillUnderStudy(ctx, character.Ptr("Healing")))
	require.NoError(t, env.store.ToggleCondition(ctx, character.CondScared))

	got := env.stored(t, c.ID)
	require.Equal(t, 13, got.MaxHP)
	require.Equal(t, 11, got.MaxWP)
	require.Equal(t, 5, got.CurrentHP)
	require.Equal(t, []string{"Veteran"}, got.HeroicAbilities)
	require.Equal(t, 10, got.SkillLevels["Animism"])
	require.Equal(t, "Animism", got.Spells.School.Name)
	require.Equal(t, "Healing", *got.Teacher)
	require.True(t, got.Conditions.Scared)

	err := env.store.ToggleCondition(ctx, "cursed")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestDeathRolls(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{MaxHP: 10})
	ctx := context.Background()

	require.NoError(t, env.store.SetDeathRollState(ctx, 1, 1, character.Ptr(true)))
	require.NoError(t, env.store.UpdateDeathRolls(ctx, rules.DeathRollFailed, 2))

	got := env.stored(t, c.ID)
	require.Equal(t, 1, got.DeathRollsPassed)
	require.Equal(t, 2, got.DeathRollsFailed)
	require.True(t, got.IsRallied)
}

func TestSave_InvariantGuardRefusesSilently(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{MaxHP: 10, CurrentHP: 6})

	err := env.store.Save(context.Background(), character.Update{CurrentHP: character.Ptr(11)})
	require.NoError(t, err)
	require.Zero(t, env.gw.writes.Load())
	require.Equal(t, 6, env.current(t).CurrentHP)
	require.Equal(t, 6, env.stored(t, c.ID).CurrentHP)

	warnings := env.logs.FilterMessage("update refused by invariant guard").All()
	require.Len(t, warnings, 1)
	require.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.InvariantGuards))
}

func TestSave_RemoteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, character.Character{MaxHP: 10, CurrentHP: 6})
	env.gw.fail.Store(true)

	err := env.store.AdjustStat(context.Background(), character.StatHP, -2)
	require.True(t, errors.Is(err, errors.ErrRemote), "got %v", err)
	require.Error(t, env.store.SaveError())
	require.Equal(t, 6, env.current(t).CurrentHP, "state must not change without an acknowledged write")
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SavesTotal.WithLabelValues("failed")))

	env.gw.fail.Store(false)
	require.NoError(t, env.store.AdjustStat(context.Background(), character.StatHP, -2))
	require.NoError(t, env.store.SaveError())
	require.Equal(t, 4, env.current(t).CurrentHP)
}

func TestSave_NoCharacter(t *testing.T) {
	env := newTestEnv(t)
	err := env.store.AdjustStat(context.Background(), character.StatHP, 1)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestIncreaseMaxStat(t *testing.T) {
	env := newTestEnv(t)
	c := env.seed(t, character.Character{MaxHP: 10, CurrentHP: 10, MaxWP: 8})
	ctx := context.Background()

	newMax, err := env.store.IncreaseMaxStat(ctx, character.StatHP)
	require.NoError(t, err)
	require.Equal(t, 11, newMax)
	require.Equal(t, 11, env.current(t).MaxHP)
	require.Equal(t, 11, env.stored(t, c.ID).MaxHP)

	_, err = env.store.IncreaseMaxStat(ctx, "luck")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	env.gw.fail.Store(true)
	_, err = env.store.IncreaseMaxStat(ctx, character.StatWP)
	require.True(t, errors.Is(err, errors.ErrRemote))
	require.Equal(t, 8, env.current(t).MaxWP)
}

func TestCombatantUpdateMirrorsLinkedCharacter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	enc := &character.Encounter{PartyID: "party-1", Name: "Bridge troll", Status: character.EncounterStatusActive}
	require.NoError(t, env.gw.InsertEncounter(ctx, enc))
	c := character.Character{
		ID: db.NewID(), PartyID: character.Ptr("party-1"),
		MaxHP: 10, CurrentHP: 8, MaxWP: 6, CurrentWP: 6,
		SkillLevels: map[string]int{"Swords": 12},
	}
	mine := &character.Combatant{EncounterID: enc.ID, CharacterID: &c.ID, Name: "Wenna", CurrentHP: 8, CurrentWP: 6}
	troll := &character.Combatant{EncounterID: enc.ID, Name: "Troll", CurrentHP: 30}
	require.NoError(t, env.gw.InsertCombatant(ctx, mine))
	require.NoError(t, env.gw.InsertCombatant(ctx, troll))
	env.seed(t, c)
	before := env.current(t)

	_, err := env.store.Encounter().UpdateCombatant(ctx, mine.ID, character.CombatantUpdate{CurrentHP: character.Ptr(3), CurrentWP: character.Ptr(40)})
	require.NoError(t, err)

	after := env.current(t)
	require.Equal(t, 3, after.CurrentHP)
	require.Equal(t, 6, after.CurrentWP, "mirrored values are clamped to max")

	after.CurrentHP, after.CurrentWP = before.CurrentHP, before.CurrentWP
	require.Equal(t, before, after, "mirroring touches only hp and wp")

	_, err = env.store.Encounter().UpdateCombatant(ctx, troll.ID, character.CombatantUpdate{CurrentHP: character.Ptr(1)})
	require.NoError(t, err)
	require.Equal(t, 3, env.current(t).CurrentHP, "unlinked combatants never touch the character")
}

func TestDrawInitiative_WithoutEncounter(t *testing.T) {
	env := newTestEnv(t, 7)
	env.seed(t, character.Character{})

	out, err := env.store.Encounter().DrawInitiative(context.Background())
	require.NoError(t, err)
	require.True(t, out.Refused)
	require.Equal(t, combat.NoEncounterMessage, env.store.Status())
}
