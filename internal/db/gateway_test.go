package db

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/metrics"
)

func newTestGateway(t *testing.T) (*Gateway, *metrics.Metrics) {
	t.Helper()
	db, err := Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New("test")
	g := NewGateway(db, SQLite, m)
	g.now = func() int64 { return 1700000000 }
	return g, m
}

func seedCharacter(t *testing.T, g *Gateway) *character.Character {
	t.Helper()
	c := &character.Character{
		UserID:     "user-1",
		PartyID:    character.Ptr("party-1"),
		Name:       "Wenna",
		CurrentHP:  8,
		MaxHP:      12,
		CurrentWP:  5,
		MaxWP:      10,
		Attributes: map[character.Attribute]int{character.AttrConstitution: 12, character.AttrWillpower: 10},
		Conditions: character.Conditions{Dazed: true},
		SkillLevels: map[string]int{
			"Swords": 12,
		},
		HeroicAbilities: []string{"Veteran"},
		Spells:          character.Spells{General: []string{"Light"}},
		Teacher:         character.Ptr("Swords"),
		Equipment: character.Equipment{
			Inventory: []character.InventoryItem{{Name: "Rope", Quantity: 1}},
			Equipped:  map[string]string{"weapon1": "Broadsword"},
			Money:     character.Money{Silver: 7},
		},
		Notes: "# Backstory\nRaised by *ducks*.",
	}
	require.NoError(t, g.InsertCharacter(context.Background(), c))
	require.NotEmpty(t, c.ID)
	return c
}

func TestGateway_GetCharacter(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	seeded := seedCharacter(t, g)

	got, err := g.GetCharacter(ctx, seeded.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, seeded.Name, got.Name)
	require.Equal(t, "party-1", *got.PartyID)
	require.Equal(t, 12, got.Attributes[character.AttrConstitution])
	require.True(t, got.Conditions.Dazed)
	require.Equal(t, []string{"Veteran"}, got.HeroicAbilities)
	require.Equal(t, "Broadsword", got.Equipment.Equipped["weapon1"])
	require.Equal(t, "Swords", *got.Teacher)
	require.Equal(t, int64(1700000000), got.UpdatedAt)
}

func TestGateway_GetCharacter_ScopedToUser(t *testing.T) {
	g, _ := newTestGateway(t)
	seeded := seedCharacter(t, g)

	_, err := g.GetCharacter(context.Background(), seeded.ID, "someone-else")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	_, err = g.GetCharacter(context.Background(), "missing", "user-1")
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestGateway_UpdateCharacter(t *testing.T) {
	g, m := newTestGateway(t)
	ctx := context.Background()
	seeded := seedCharacter(t, g)

	g.now = func() int64 { return 1700000100 }
	conds := character.Conditions{Scared: true}
	updatedAt, err := g.UpdateCharacter(ctx, seeded.ID, character.Update{
		CurrentHP:    character.Ptr(3),
		Conditions:   &conds,
		IsRallied:    character.Ptr(true),
		ClearTeacher: true,
		SkillLevels:  map[string]int{"Swords": 13},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1700000100), updatedAt)

	got, err := g.GetCharacter(ctx, seeded.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 3, got.CurrentHP)
	require.Equal(t, 5, got.CurrentWP, "unset fields must not be written")
	require.Equal(t, conds, got.Conditions)
	require.True(t, got.IsRallied)
	require.Nil(t, got.Teacher)
	require.Equal(t, 13, got.SkillLevels["Swords"])
	require.Equal(t, "Wenna", got.Name)
	require.Equal(t, updatedAt, got.UpdatedAt)

	require.Equal(t, 1.0, testutil.ToFloat64(m.GatewayOps.WithLabelValues("update_character", "success")))
}

func TestGateway_UpdateCharacter_NotFound(t *testing.T) {
	g, m := newTestGateway(t)

	_, err := g.UpdateCharacter(context.Background(), "missing", character.Update{CurrentHP: character.Ptr(1)})
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
	require.Equal(t, 1.0, testutil.ToFloat64(m.GatewayOps.WithLabelValues("update_character", "failed")))
}

func TestGateway_IncreaseMaxStat(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	seeded := seedCharacter(t, g)

	newMax, _, err := g.IncreaseMaxStat(ctx, seeded.ID, character.StatHP)
	require.NoError(t, err)
	require.Equal(t, 13, newMax)

	newMax, _, err = g.IncreaseMaxStat(ctx, seeded.ID, character.StatWP)
	require.NoError(t, err)
	require.Equal(t, 11, newMax)

	got, err := g.GetCharacter(ctx, seeded.ID, "user-1")
	require.NoError(t, err)
	require.Equal(t, 13, got.MaxHP)
	require.Equal(t, 11, got.MaxWP)
	require.Equal(t, 8, got.CurrentHP, "current value is untouched")

	_, _, err = g.IncreaseMaxStat(ctx, "missing", character.StatHP)
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	_, _, err = g.IncreaseMaxStat(ctx, seeded.ID, "str")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestGateway_Encounters(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	none, err := g.GetLatestEncounterForParty(ctx, "party-1")
	require.NoError(t, err)
	require.Nil(t, none)

	old := &character.Encounter{PartyID: "party-1", Name: "Goblin ambush", Status: "ended", CreatedAt: 100}
	require.NoError(t, g.InsertEncounter(ctx, old))
	latest := &character.Encounter{PartyID: "party-1", Name: "Bridge troll", Status: character.EncounterStatusActive, CreatedAt: 200}
	require.NoError(t, g.InsertEncounter(ctx, latest))
	require.NoError(t, g.InsertEncounter(ctx, &character.Encounter{PartyID: "party-2", Name: "Other", Status: "active", CreatedAt: 300}))

	got, err := g.GetLatestEncounterForParty(ctx, "party-1")
	require.NoError(t, err)
	require.Equal(t, latest.ID, got.ID)
	require.True(t, got.Active())
}

func TestGateway_LatestEncounter_SameSecond(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	// g.now is pinned, so both rows share created_at and the ID breaks the tie.
	first := &character.Encounter{PartyID: "party-1", Name: "Goblin ambush", Status: "ended"}
	require.NoError(t, g.InsertEncounter(ctx, first))
	second := &character.Encounter{PartyID: "party-1", Name: "Bridge troll", Status: character.EncounterStatusActive}
	require.NoError(t, g.InsertEncounter(ctx, second))
	require.Equal(t, first.CreatedAt, second.CreatedAt)

	got, err := g.GetLatestEncounterForParty(ctx, "party-1")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
}

func TestNewID_Monotonic(t *testing.T) {
	prev := NewID()
	for i := 0; i < 1000; i++ {
		id := NewID()
		require.Len(t, id, 26)
		require.Greater(t, id, prev, "IDs minted back to back must increase")
		prev = id
	}
}

func TestGateway_Combatants(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	enc := &character.Encounter{PartyID: "party-1", Name: "Bridge troll", Status: "active"}
	require.NoError(t, g.InsertEncounter(ctx, enc))

	pc := &character.Combatant{EncounterID: enc.ID, CharacterID: character.Ptr("char-1"), Name: "Wenna", CurrentHP: 8, CurrentWP: 5, CreatedAt: 1}
	npc := &character.Combatant{EncounterID: enc.ID, Name: "Troll", InitiativeRoll: character.Ptr(4), CurrentHP: 30, CreatedAt: 2}
	require.NoError(t, g.InsertCombatant(ctx, pc))
	require.NoError(t, g.InsertCombatant(ctx, npc))

	list, err := g.ListCombatants(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Wenna", list[0].Name)
	require.Nil(t, list[0].InitiativeRoll)
	require.Nil(t, list[1].CharacterID)
	require.Equal(t, 4, *list[1].InitiativeRoll)

	updated, err := g.UpdateCombatant(ctx, pc.ID, character.CombatantUpdate{InitiativeRoll: character.Ptr(7), CurrentHP: character.Ptr(2)})
	require.NoError(t, err)
	require.Equal(t, 7, *updated.InitiativeRoll)
	require.Equal(t, 2, updated.CurrentHP)
	require.Equal(t, 5, updated.CurrentWP)

	updated, err = g.UpdateCombatant(ctx, npc.ID, character.CombatantUpdate{ClearInitiative: true})
	require.NoError(t, err)
	require.Nil(t, updated.InitiativeRoll)

	_, err = g.UpdateCombatant(ctx, "missing", character.CombatantUpdate{CurrentHP: character.Ptr(1)})
	require.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}

func TestGateway_Catalog(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, g.InsertItem(ctx, &character.Item{Name: "Torch", Category: "gear", Weight: 1, Cost: "1 copper"}))
	require.NoError(t, g.InsertItem(ctx, &character.Item{Name: "Rope", Category: "gear", Weight: 1}))
	require.NoError(t, g.InsertHeroicAbility(ctx, &character.HeroicAbility{Name: "Berserker", WillpowerCost: 3}))

	items, err := g.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Rope", items[0].Name)

	abilities, err := g.ListHeroicAbilities(ctx)
	require.NoError(t, err)
	require.Len(t, abilities, 1)
	require.Equal(t, 3, abilities[0].WillpowerCost)
}

func TestGateway_RemoteErrorWhenClosed(t *testing.T) {
	g, _ := newTestGateway(t)
	seeded := seedCharacter(t, g)
	require.NoError(t, g.DB().Close())

	_, err := g.UpdateCharacter(context.Background(), seeded.ID, character.Update{CurrentHP: character.Ptr(1)})
	require.True(t, errors.Is(err, errors.ErrRemote), "got %v", err)

	hErr, ok := errors.As(err)
	require.True(t, ok)
	require.Error(t, hErr.Unwrap(), "remote errors keep their cause")
}

func TestDialect_Placeholders(t *testing.T) {
	g := NewGateway(nil, Postgres, nil)
	query, args, err := g.sb.Update("characters").Set("current_hp", 3).Where("id = ?", "c1").ToSql()
	require.NoError(t, err)
	require.True(t, strings.Contains(query, "$1") && strings.Contains(query, "$2"), query)
	require.Len(t, args, 2)
}
