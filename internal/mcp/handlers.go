package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/rules"
	"github.com/hpungsan/hearth/internal/state"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store *state.Store
	cfg   *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store *state.Store, cfg *config.Config) *Handlers {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Handlers{store: store, cfg: cfg}
}

// Request types for each tool

// LoadRequest represents the arguments for character_load.
type LoadRequest struct {
	CharacterID string `json:"character_id"`
	UserID      string `json:"user_id,omitempty"`
}

// AdjustStatRequest represents the arguments for character_adjust_stat.
type AdjustStatRequest struct {
	Stat  character.Stat `json:"stat"`
	Delta int            `json:"delta"`
}

// ToggleConditionRequest represents the arguments for character_toggle_condition.
type ToggleConditionRequest struct {
	Condition character.Condition `json:"condition"`
}

// RestRequest represents the arguments for character_rest.
type RestRequest struct {
	Kind          rules.RestKind `json:"kind"`
	HealerPresent bool           `json:"healer_present,omitempty"`
}

// SetDeathRollsRequest represents the arguments for character_set_death_rolls.
type SetDeathRollsRequest struct {
	Successes int   `json:"successes"`
	Failures  int   `json:"failures"`
	Rallied   *bool `json:"rallied,omitempty"`
}

// UpdateDeathRollsRequest represents the arguments for character_update_death_rolls.
type UpdateDeathRollsRequest struct {
	Kind  rules.DeathRollKind `json:"kind"`
	Value int                 `json:"value"`
}

// UpdateAttributeRequest represents the arguments for character_update_attribute.
type UpdateAttributeRequest struct {
	Attribute character.Attribute `json:"attribute"`
	Value     int                 `json:"value"`
}

// SkillRequest represents the arguments for character_increase_skill.
type SkillRequest struct {
	Skill string `json:"skill"`
}

// NameRequest represents the arguments for character_add_heroic_ability.
type NameRequest struct {
	Name string `json:"name"`
}

// LearnSpellRequest represents the arguments for character_learn_spell.
type LearnSpellRequest struct {
	Name   string `json:"name"`
	School string `json:"school,omitempty"`
}

// MagicSchoolRequest represents the arguments for character_add_magic_school.
type MagicSchoolRequest struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// StudyRequest represents the arguments for character_set_study.
type StudyRequest struct {
	Skill *string `json:"skill,omitempty"`
}

// StatRequest represents the arguments for character_increase_max_stat.
type StatRequest struct {
	Stat character.Stat `json:"stat"`
}

// SetInitiativeRequest represents the arguments for encounter_set_initiative.
type SetInitiativeRequest struct {
	CombatantID string `json:"combatant_id"`
	Value       int    `json:"value"`
}

// UpdateCombatantRequest represents the arguments for encounter_update_combatant.
type UpdateCombatantRequest struct {
	CombatantID     string `json:"combatant_id"`
	InitiativeRoll  *int   `json:"initiative_roll,omitempty"`
	ClearInitiative bool   `json:"clear_initiative,omitempty"`
	CurrentHP       *int   `json:"current_hp,omitempty"`
	CurrentWP       *int   `json:"current_wp,omitempty"`
}

// Response types

// CharacterOutput is the active character plus its surrounding session state.
type CharacterOutput struct {
	Character *character.Character `json:"character"`
	Status    string               `json:"status,omitempty"`
	LoadError string               `json:"load_error,omitempty"`
	SaveError string               `json:"save_error,omitempty"`
}

// RestOutput reports a rest and the character after it.
type RestOutput struct {
	Rest rules.RestOutcome `json:"rest"`
	CharacterOutput
}

// MaxStatOutput reports a max stat increase.
type MaxStatOutput struct {
	Stat   character.Stat `json:"stat"`
	NewMax int            `json:"new_max"`
	CharacterOutput
}

// EncounterOutput is the encounter snapshot plus the live status message.
type EncounterOutput struct {
	combat.Snapshot
	Status string `json:"status,omitempty"`
}

// InitiativeOutput reports an initiative draw.
type InitiativeOutput struct {
	Initiative combat.InitiativeOutcome `json:"initiative"`
	Status     string                   `json:"status,omitempty"`
}

// Character handlers

// HandleLoad handles the character_load tool call.
func (h *Handlers) HandleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LoadRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if strings.TrimSpace(input.CharacterID) == "" {
		return errorResult(errors.NewInvalidRequest("character_id is required")), nil
	}

	userID := input.UserID
	if userID == "" {
		userID = h.cfg.DefaultUser
	}
	if err := h.store.Load(ctx, input.CharacterID, userID); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.characterOutput())
}

// HandleShow handles the character_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.characterOutput())
}

// HandleAdjustStat handles the character_adjust_stat tool call.
func (h *Handlers) HandleAdjustStat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AdjustStatRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.AdjustStat(ctx, input.Stat, input.Delta))
}

// HandleToggleCondition handles the character_toggle_condition tool call.
func (h *Handlers) HandleToggleCondition(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ToggleConditionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.ToggleCondition(ctx, input.Condition))
}

// HandleRest handles the character_rest tool call. A refused rest is a successful
// call whose outcome has refused=true.
func (h *Handlers) HandleRest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RestRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	out, err := h.store.PerformRest(ctx, input.Kind, input.HealerPresent)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(RestOutput{Rest: out, CharacterOutput: h.characterOutput()})
}

// HandleSetDeathRolls handles the character_set_death_rolls tool call.
func (h *Handlers) HandleSetDeathRolls(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetDeathRollsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.SetDeathRollState(ctx, input.Successes, input.Failures, input.Rallied))
}

// HandleUpdateDeathRolls handles the character_update_death_rolls tool call.
func (h *Handlers) HandleUpdateDeathRolls(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateDeathRollsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.UpdateDeathRolls(ctx, input.Kind, input.Value))
}

// HandleUpdateAttribute handles the character_update_attribute tool call.
func (h *Handlers) HandleUpdateAttribute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateAttributeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.UpdateAttribute(ctx, input.Attribute, input.Value))
}

// HandleIncreaseSkill handles the character_increase_skill tool call.
func (h *Handlers) HandleIncreaseSkill(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SkillRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.IncreaseSkillLevel(ctx, input.Skill))
}

// HandleAddHeroicAbility handles the character_add_heroic_ability tool call.
func (h *Handlers) HandleAddHeroicAbility(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NameRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.AddHeroicAbility(ctx, input.Name))
}

// HandleLearnSpell handles the character_learn_spell tool call.
func (h *Handlers) HandleLearnSpell(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[LearnSpellRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.LearnSpell(ctx, character.Spell{Name: input.Name, School: input.School}))
}

// HandleAddMagicSchool handles the character_add_magic_school tool call.
func (h *Handlers) HandleAddMagicSchool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MagicSchoolRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.AddMagicSchool(ctx, character.MagicSchool{Name: input.Name}, input.Level))
}

// HandleSetStudy handles the character_set_study tool call.
func (h *Handlers) HandleSetStudy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StudyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.afterMutation(h.store.SetSkillUnderStudy(ctx, input.Skill))
}

// HandleIncreaseMaxStat handles the character_increase_max_stat tool call.
func (h *Handlers) HandleIncreaseMaxStat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StatRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	newMax, err := h.store.IncreaseMaxStat(ctx, input.Stat)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(MaxStatOutput{Stat: input.Stat, NewMax: newMax, CharacterOutput: h.characterOutput()})
}

// Encounter handlers

// HandleEncounterShow handles the encounter_show tool call.
func (h *Handlers) HandleEncounterShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enc, err := h.encounter()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(EncounterOutput{Snapshot: enc.Snapshot(), Status: h.store.Status()})
}

// HandleEncounterRefresh handles the encounter_refresh tool call.
func (h *Handlers) HandleEncounterRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enc, err := h.encounter()
	if err != nil {
		return errorResult(err), nil
	}
	if err := enc.Refresh(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(EncounterOutput{Snapshot: enc.Snapshot(), Status: h.store.Status()})
}

// HandleDrawInitiative handles the encounter_draw_initiative tool call.
func (h *Handlers) HandleDrawInitiative(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enc, err := h.encounter()
	if err != nil {
		return errorResult(err), nil
	}
	out, err := enc.DrawInitiative(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(InitiativeOutput{Initiative: out, Status: h.store.Status()})
}

// HandleSetInitiative handles the encounter_set_initiative tool call.
func (h *Handlers) HandleSetInitiative(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SetInitiativeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	enc, err := h.encounter()
	if err != nil {
		return errorResult(err), nil
	}
	c, err := enc.SetInitiativeForCombatant(ctx, input.CombatantID, input.Value)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(c)
}

// HandleUpdateCombatant handles the encounter_update_combatant tool call.
func (h *Handlers) HandleUpdateCombatant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[UpdateCombatantRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	enc, err := h.encounter()
	if err != nil {
		return errorResult(err), nil
	}
	c, err := enc.UpdateCombatant(ctx, input.CombatantID, character.CombatantUpdate{
		InitiativeRoll:  input.InitiativeRoll,
		ClearInitiative: input.ClearInitiative,
		CurrentHP:       input.CurrentHP,
		CurrentWP:       input.CurrentWP,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(c)
}

// Catalog handlers

// HandleListItems handles the catalog_list_items tool call.
func (h *Handlers) HandleListItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loader := h.store.Catalog()
	if loader == nil {
		return errorResult(errors.NewInternal(nil)), nil
	}
	if err := loader.Ensure(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"items": loader.Items()})
}

// HandleListHeroicAbilities handles the catalog_list_heroic_abilities tool call.
func (h *Handlers) HandleListHeroicAbilities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loader := h.store.Catalog()
	if loader == nil {
		return errorResult(errors.NewInternal(nil)), nil
	}
	if err := loader.Ensure(ctx); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"heroic_abilities": loader.HeroicAbilities()})
}

func (h *Handlers) afterMutation(err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(h.characterOutput())
}

func (h *Handlers) characterOutput() CharacterOutput {
	out := CharacterOutput{Status: h.store.Status()}
	if c, ok := h.store.Character(); ok {
		out.Character = &c
	}
	if err := h.store.LoadError(); err != nil {
		out.LoadError = err.Error()
	}
	if err := h.store.SaveError(); err != nil {
		out.SaveError = err.Error()
	}
	return out
}

func (h *Handlers) encounter() (*combat.Sync, error) {
	enc := h.store.Encounter()
	if enc == nil {
		return nil, errors.NewInternal(nil)
	}
	return enc, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if hErr, ok := errors.As(err); ok {
		msg := hErr.Message
		// keep any wrapping context ("items[2]: ...") in front of the message
		if prefix := strings.TrimSuffix(err.Error(), hErr.Error()); prefix != err.Error() {
			msg = prefix + msg
		}
		errorObj := map[string]any{
			"code":    hErr.Code,
			"message": msg,
			"status":  hErr.Status,
		}
		if hErr.Code != errors.ErrInternal && hErr.Details != nil {
			errorObj["details"] = hErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
