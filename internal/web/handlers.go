package web

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/rules"
	"github.com/hpungsan/hearth/internal/state"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the character session.
type Handlers struct {
	store    *state.Store
	cfg      *config.Config
	renderer *Renderer
}

// CharacterResponse is the active character plus its surrounding session state.
type CharacterResponse struct {
	Character *character.Character `json:"character"`
	Loading   bool                 `json:"loading"`
	Status    string               `json:"status,omitempty"`
	LoadError string               `json:"load_error,omitempty"`
	SaveError string               `json:"save_error,omitempty"`
}

// HandleCharacter handles GET /character.
func (h *Handlers) HandleCharacter(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.characterResponse())
}

// HandleLoad handles POST /character/load.
func (h *Handlers) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CharacterID string `json:"character_id"`
		UserID      string `json:"user_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if strings.TrimSpace(body.CharacterID) == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("character_id is required"))
		return
	}
	if body.UserID == "" {
		body.UserID = h.cfg.DefaultUser
	}

	if err := h.store.Load(r.Context(), body.CharacterID, body.UserID); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, h.characterResponse())
}

// HandleAdjustStat handles POST /character/stat.
func (h *Handlers) HandleAdjustStat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stat  character.Stat `json:"stat"`
		Delta int            `json:"delta"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.afterMutation(w, r, h.store.AdjustStat(r.Context(), body.Stat, body.Delta))
}

// HandleToggleCondition handles POST /character/condition.
func (h *Handlers) HandleToggleCondition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Condition character.Condition `json:"condition"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.afterMutation(w, r, h.store.ToggleCondition(r.Context(), body.Condition))
}

// HandleRest handles POST /character/rest. A refused rest answers 200 with refused=true.
func (h *Handlers) HandleRest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind          rules.RestKind `json:"kind"`
		HealerPresent bool           `json:"healer_present"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := h.store.PerformRest(r.Context(), body.Kind, body.HealerPresent)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, struct {
		Rest rules.RestOutcome `json:"rest"`
		CharacterResponse
	}{out, h.characterResponse()})
}

// HandleIncreaseMaxStat handles POST /character/max-stat.
func (h *Handlers) HandleIncreaseMaxStat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stat character.Stat `json:"stat"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	newMax, err := h.store.IncreaseMaxStat(r.Context(), body.Stat)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, struct {
		NewMax int `json:"new_max"`
		CharacterResponse
	}{newMax, h.characterResponse()})
}

// HandleNotes handles GET /character/notes, rendering the markdown fields as HTML.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	c, ok := h.store.Character()
	if !ok {
		h.renderer.renderError(w, r, errors.NewNotFound("character", "active"))
		return
	}

	fields := []struct{ id, title, text string }{
		{"notes", "Notes", c.Notes},
		{"appearance", "Appearance", c.Appearance},
		{"memento", "Memento", c.Memento},
		{"flaw", "Weakness", c.Flaw},
	}
	data := NotesPageData{Name: c.Name, UpdatedAt: c.UpdatedAt}
	for _, f := range fields {
		data.Sections = append(data.Sections, NotesSection{
			ID:    f.id,
			Title: f.title,
			HTML:  h.renderer.renderMarkdown(f.text),
		})
	}
	h.renderer.renderNotes(w, data)
}

// HandleEncounter handles GET /encounter.
func (h *Handlers) HandleEncounter(w http.ResponseWriter, r *http.Request) {
	enc, err := h.encounter()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, enc.Snapshot())
}

// HandleRefreshEncounter handles POST /encounter/refresh.
func (h *Handlers) HandleRefreshEncounter(w http.ResponseWriter, r *http.Request) {
	enc, err := h.encounter()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if err := enc.Refresh(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, enc.Snapshot())
}

// HandleInitiative handles POST /encounter/initiative.
// An empty body draws for the active character; {combatant_id, value} sets a chosen value.
func (h *Handlers) HandleInitiative(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CombatantID string `json:"combatant_id"`
		Value       *int   `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	enc, err := h.encounter()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if body.CombatantID != "" || body.Value != nil {
		if body.CombatantID == "" || body.Value == nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("combatant_id and value must be given together"))
			return
		}
		c, err := enc.SetInitiativeForCombatant(r.Context(), body.CombatantID, *body.Value)
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, c)
		return
	}

	out, err := enc.DrawInitiative(r.Context())
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, struct {
		combat.InitiativeOutcome
		Status string `json:"status,omitempty"`
	}{out, h.store.Status()})
}

// HandleUpdateCombatant handles PATCH /combatants/{id}.
func (h *Handlers) HandleUpdateCombatant(w http.ResponseWriter, r *http.Request) {
	var u character.CombatantUpdate
	if err := decodeBody(r, &u); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	enc, err := h.encounter()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	c, err := enc.UpdateCombatant(r.Context(), r.PathValue("id"), u)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, c)
}

// HandleItems handles GET /catalog/items.
func (h *Handlers) HandleItems(w http.ResponseWriter, r *http.Request) {
	loader := h.store.Catalog()
	if loader == nil {
		h.renderer.renderError(w, r, errors.NewInternal(nil))
		return
	}
	if err := loader.Ensure(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"items": loader.Items()})
}

// HandleHeroicAbilities handles GET /catalog/heroic-abilities.
func (h *Handlers) HandleHeroicAbilities(w http.ResponseWriter, r *http.Request) {
	loader := h.store.Catalog()
	if loader == nil {
		h.renderer.renderError(w, r, errors.NewInternal(nil))
		return
	}
	if err := loader.Ensure(r.Context()); err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, map[string]any{"heroic_abilities": loader.HeroicAbilities()})
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": h.store.Status()})
}

func (h *Handlers) afterMutation(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	renderJSON(w, http.StatusOK, h.characterResponse())
}

func (h *Handlers) characterResponse() CharacterResponse {
	resp := CharacterResponse{Loading: h.store.Loading(), Status: h.store.Status()}
	if c, ok := h.store.Character(); ok {
		resp.Character = &c
	}
	if err := h.store.LoadError(); err != nil {
		resp.LoadError = err.Error()
	}
	if err := h.store.SaveError(); err != nil {
		resp.SaveError = err.Error()
	}
	return resp
}

func (h *Handlers) encounter() (*combat.Sync, error) {
	enc := h.store.Encounter()
	if enc == nil {
		return nil, errors.NewInternal(nil)
	}
	return enc, nil
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.NewInvalidRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}
