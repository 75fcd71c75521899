package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hpungsan/hearth/internal/catalog"
	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/db"
	"github.com/hpungsan/hearth/internal/dice"
	"github.com/hpungsan/hearth/internal/metrics"
	"github.com/hpungsan/hearth/internal/state"
	"github.com/hpungsan/hearth/internal/status"
)

type testEnv struct {
	gw      *db.Gateway
	store   *state.Store
	handler http.Handler
	char    *character.Character
}

func setupTest(t *testing.T, rolls ...int) *testEnv {
	t.Helper()
	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	m := metrics.New("hearth")
	gw := db.NewGateway(database, db.SQLite, m)
	board := status.NewBoard(0)
	t.Cleanup(board.Clear)
	roller := dice.NewSequence(rolls...)
	store := state.New(state.Options{
		Gateway:   gw,
		Encounter: combat.New(gw, roller, board, nil, m),
		Catalog:   catalog.NewLoader(gw, nil, m),
		Status:    board,
		Roller:    roller,
		Metrics:   m,
	})

	c := &character.Character{
		UserID:     "user-1",
		PartyID:    character.Ptr("party-1"),
		Name:       "Wenna",
		CurrentHP:  0,
		MaxHP:      10,
		CurrentWP:  5,
		MaxWP:      12,
		Notes:      "# Backstory\nRaised by **ducks**.\n\n<script>alert(1)</script>",
		Appearance: "Tall, with a *red* scarf.",
	}
	if err := gw.InsertCharacter(context.Background(), c); err != nil {
		t.Fatalf("seed character: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.DefaultUser = "user-1"
	srv := NewServer(store, m, cfg, "test", nil)

	return &testEnv{gw: gw, store: store, handler: srv.Handler, char: c}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) load(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/character/load", `{"character_id":"`+e.char.ID+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("load status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	errObj, ok := decodeJSON(t, rec)["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %s", rec.Body.String())
	}
	return errObj["code"].(string)
}

// --- character ---

func TestHandleCharacter_BeforeLoad(t *testing.T) {
	env := setupTest(t)

	rec := env.do(t, http.MethodGet, "/character", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeJSON(t, rec)["character"]; got != nil {
		t.Errorf("character = %v, want null", got)
	}
}

func TestHandleLoad(t *testing.T) {
	env := setupTest(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"missing id", `{}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"malformed", `{"character_id":`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown field", `{"character_id":"x","workspace":"y"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"wrong user", `{"character_id":"` + env.char.ID + `","user_id":"user-9"}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/character/load", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}

	env.load(t)
	rec := env.do(t, http.MethodGet, "/character", "")
	char := decodeJSON(t, rec)["character"].(map[string]any)
	if char["name"] != "Wenna" {
		t.Errorf("name = %v, want Wenna", char["name"])
	}
}

func TestHandleAdjustStat_HealFromZero(t *testing.T) {
	env := setupTest(t)
	env.load(t)

	if err := env.store.SetDeathRollState(context.Background(), 0, 2, character.Ptr(true)); err != nil {
		t.Fatalf("SetDeathRollState: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/character/stat", `{"stat":"hp","delta":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	char := decodeJSON(t, rec)["character"].(map[string]any)
	if char["current_hp"] != float64(3) {
		t.Errorf("current_hp = %v, want 3", char["current_hp"])
	}
	if char["death_rolls_failed"] != float64(0) || char["is_rallied"] != false {
		t.Errorf("death rolls not reset: failed=%v rallied=%v", char["death_rolls_failed"], char["is_rallied"])
	}
}

func TestHandleToggleCondition_Unknown(t *testing.T) {
	env := setupTest(t)
	env.load(t)

	rec := env.do(t, http.MethodPost, "/character/condition", `{"condition":"hungry"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleRest(t *testing.T) {
	env := setupTest(t, 4)
	env.load(t)

	rec := env.do(t, http.MethodPost, "/character/rest", `{"kind":"stretch","healer_present":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	out := decodeJSON(t, rec)
	if out["rest"].(map[string]any)["refused"] != true {
		t.Error("stretch rest at 0 HP should be refused")
	}

	rec = env.do(t, http.MethodGet, "/status", "")
	if got := decodeJSON(t, rec)["status"]; got != "You cannot take a stretch rest at 0 HP. Make death rolls or get healed first." {
		t.Errorf("status = %v", got)
	}

	rec = env.do(t, http.MethodPost, "/character/rest", `{"kind":"shift"}`)
	char := decodeJSON(t, rec)["character"].(map[string]any)
	if char["current_hp"] != float64(10) || char["current_wp"] != float64(12) {
		t.Errorf("shift rest: hp=%v wp=%v, want 10/12", char["current_hp"], char["current_wp"])
	}
}

func TestHandleIncreaseMaxStat(t *testing.T) {
	env := setupTest(t)
	env.load(t)

	rec := env.do(t, http.MethodPost, "/character/max-stat", `{"stat":"hp"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec)["new_max"]; got != float64(11) {
		t.Errorf("new_max = %v, want 11", got)
	}
}

func TestHandleNotes(t *testing.T) {
	env := setupTest(t)

	rec := env.do(t, http.MethodGet, "/character/notes", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status before load = %d, want 404", rec.Code)
	}

	env.load(t)
	rec = env.do(t, http.MethodGet, "/character/notes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{"<h1>Backstory</h1>", "<strong>ducks</strong>", "<em>red</em>", `id="appearance"`} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("raw HTML from notes must not be rendered")
	}
	if strings.Contains(body, `id="memento"`) {
		t.Error("empty sections should be omitted")
	}
}

// --- encounter ---

func seedEncounter(t *testing.T, env *testEnv) (mine, goblin *character.Combatant) {
	t.Helper()
	ctx := context.Background()
	enc := &character.Encounter{PartyID: "party-1", Name: "Bridge", Status: character.EncounterStatusActive}
	if err := env.gw.InsertEncounter(ctx, enc); err != nil {
		t.Fatalf("InsertEncounter: %v", err)
	}
	mine = &character.Combatant{EncounterID: enc.ID, CharacterID: &env.char.ID, Name: "Wenna"}
	goblin = &character.Combatant{EncounterID: enc.ID, Name: "Goblin", CurrentHP: 5}
	for _, c := range []*character.Combatant{mine, goblin} {
		if err := env.gw.InsertCombatant(ctx, c); err != nil {
			t.Fatalf("InsertCombatant: %v", err)
		}
	}
	return mine, goblin
}

func TestHandleInitiative_NoEncounter(t *testing.T) {
	env := setupTest(t, 7)
	env.load(t)

	rec := env.do(t, http.MethodPost, "/encounter/initiative", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	out := decodeJSON(t, rec)
	if out["refused"] != true {
		t.Errorf("refused = %v, want true", out["refused"])
	}
	if out["status"] != combat.NoEncounterMessage {
		t.Errorf("status = %v, want %q", out["status"], combat.NoEncounterMessage)
	}
}

func TestHandleEncounterFlow(t *testing.T) {
	env := setupTest(t, 7)
	mine, goblin := seedEncounter(t, env)
	env.load(t)

	rec := env.do(t, http.MethodPost, "/encounter/initiative", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("draw status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := decodeJSON(t, rec)["roll"]; got != float64(7) {
		t.Errorf("roll = %v, want 7", got)
	}

	rec = env.do(t, http.MethodPost, "/encounter/initiative", `{"combatant_id":"`+goblin.ID+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("partial set status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/encounter/initiative", `{"combatant_id":"`+goblin.ID+`","value":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPatch, "/combatants/"+mine.ID, `{"current_hp":25}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rec.Code, rec.Body.String())
	}
	c, _ := env.store.Character()
	if c.CurrentHP != 10 {
		t.Errorf("mirrored current_hp = %d, want 10 (clamped to max)", c.CurrentHP)
	}

	rec = env.do(t, http.MethodPatch, "/combatants/missing", `{"current_hp":1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing combatant status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/encounter", "")
	snap := decodeJSON(t, rec)
	roster := snap["roster"].([]any)
	if len(roster) != 2 {
		t.Fatalf("roster length = %d, want 2", len(roster))
	}
	if roster[0].(map[string]any)["name"] != "Goblin" {
		t.Errorf("roster[0] = %v, want Goblin", roster[0].(map[string]any)["name"])
	}
	if snap["combatant"].(map[string]any)["id"] != mine.ID {
		t.Errorf("combatant = %v, want %s", snap["combatant"], mine.ID)
	}
}

// --- catalog, metrics, headers ---

func TestHandleCatalog(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()
	for _, name := range []string{"Torch", "Rope"} {
		if err := env.gw.InsertItem(ctx, &character.Item{Name: name}); err != nil {
			t.Fatalf("InsertItem: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/catalog/items", "")
	items := decodeJSON(t, rec)["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].(map[string]any)["name"] != "Rope" {
		t.Errorf("items should be sorted by name, got %v first", items[0].(map[string]any)["name"])
	}

	rec = env.do(t, http.MethodGet, "/catalog/heroic-abilities", "")
	if abilities := decodeJSON(t, rec)["heroic_abilities"].([]any); len(abilities) != 0 {
		t.Errorf("heroic_abilities = %d, want 0", len(abilities))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTest(t)
	env.load(t)
	env.do(t, http.MethodPost, "/character/stat", `{"stat":"wp","delta":1}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"hearth_saves_total", "hearth_gateway_ops_total", "hearth_catalog_state"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestSecurityHeadersAndRedirect(t *testing.T) {
	env := setupTest(t)

	rec := env.do(t, http.MethodGet, "/", "")
	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/character" {
		t.Errorf("Location = %q, want /character", loc)
	}
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRenderError_HTML(t *testing.T) {
	env := setupTest(t)

	req := httptest.NewRequest(http.MethodGet, "/character/notes", nil)
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `class="error-message"`) {
		t.Errorf("expected HTML error fragment, got %s", rec.Body.String())
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "never"},
		{1700000000, "2023-11-14 22:13"},
	}
	for _, tt := range tests {
		if got := formatTime(tt.in); got != tt.want {
			t.Errorf("formatTime(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
