package mcp

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/state"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"character", "encounter", "catalog"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"character_load": {
		def:     loadToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLoad },
	},
	"character_show": {
		def:     showToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleShow },
	},
	"character_adjust_stat": {
		def:     adjustStatToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAdjustStat },
	},
	"character_toggle_condition": {
		def:     toggleConditionToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleToggleCondition },
	},
	"character_rest": {
		def:     restToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleRest },
	},
	"character_set_death_rolls": {
		def:     setDeathRollsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetDeathRolls },
	},
	"character_update_death_rolls": {
		def:     updateDeathRollsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdateDeathRolls },
	},
	"character_update_attribute": {
		def:     updateAttributeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdateAttribute },
	},
	"character_increase_skill": {
		def:     increaseSkillToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIncreaseSkill },
	},
	"character_add_heroic_ability": {
		def:     addHeroicAbilityToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAddHeroicAbility },
	},
	"character_learn_spell": {
		def:     learnSpellToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLearnSpell },
	},
	"character_add_magic_school": {
		def:     addMagicSchoolToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAddMagicSchool },
	},
	"character_set_study": {
		def:     setStudyToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetStudy },
	},
	"character_increase_max_stat": {
		def:     increaseMaxStatToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleIncreaseMaxStat },
	},
	"encounter_show": {
		def:     encounterShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEncounterShow },
	},
	"encounter_refresh": {
		def:     encounterRefreshToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleEncounterRefresh },
	},
	"encounter_draw_initiative": {
		def:     drawInitiativeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleDrawInitiative },
	},
	"encounter_set_initiative": {
		def:     setInitiativeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSetInitiative },
	},
	"encounter_update_combatant": {
		def:     updateCombatantToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleUpdateCombatant },
	},
	"catalog_list_items": {
		def:     listItemsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListItems },
	},
	"catalog_list_heroic_abilities": {
		def:     listHeroicAbilitiesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleListHeroicAbilities },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "character_rest" → "character").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	// Build set of types for O(1) lookup
	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	// Collect tools belonging to disabled types
	tools := make([]string, 0)
	for name := range toolRegistry {
		typ := GetTypeForTool(name)
		if typeSet[typ] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Hearth tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(store *state.Store, cfg *config.Config, version string, log *zap.Logger) *server.MCPServer {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("mcp")

	s := server.NewMCPServer(
		"hearth",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(store, cfg)

	if unknown := ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("unknown disabled_types ignored", zap.Strings("types", unknown))
	}
	if unknown := ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("unknown disabled_tools ignored", zap.Strings("tools", unknown))
	}

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	registered := 0
	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
		registered++
	}
	log.Debug("tools registered", zap.Int("count", registered), zap.Int("disabled", len(toolRegistry)-registered))

	return s
}

// Run starts the MCP server using stdio transport.
func Run(store *state.Store, cfg *config.Config, version string, log *zap.Logger) error {
	s := NewServer(store, cfg, version, log)
	return server.ServeStdio(s)
}
