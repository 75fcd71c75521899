package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Character tools

var loadToolDef = mcp.NewTool("character_load",
	mcp.WithDescription("Load a character and make it the active one. Also syncs the party's active encounter."),
	mcp.WithString("character_id", mcp.Required(), mcp.Description("Character ID")),
	mcp.WithString("user_id", mcp.Description("Owning user (defaults to the configured default_user)")),
)

var showToolDef = mcp.NewTool("character_show",
	mcp.WithDescription("Show the active character, the live status message, and any load or save error."),
)

var adjustStatToolDef = mcp.NewTool("character_adjust_stat",
	mcp.WithDescription("Add a delta to HP or WP, clamped to [0, max]. Healing from 0 HP resets death rolls."),
	mcp.WithString("stat", mcp.Required(), mcp.Enum("hp", "wp")),
	mcp.WithNumber("delta", mcp.Required(), mcp.Description("Signed amount")),
)

var toggleConditionToolDef = mcp.NewTool("character_toggle_condition",
	mcp.WithDescription("Flip one condition on or off."),
	mcp.WithString("condition", mcp.Required(),
		mcp.Enum("exhausted", "sickly", "dazed", "angry", "scared", "disheartened")),
)

var restToolDef = mcp.NewTool("character_rest",
	mcp.WithDescription("Take a round, stretch, or shift rest. A stretch rest is refused at 0 HP."),
	mcp.WithString("kind", mcp.Required(), mcp.Enum("round", "stretch", "shift")),
	mcp.WithBoolean("healer_present", mcp.Description("Stretch rest heals 2d6 instead of d6")),
)

var setDeathRollsToolDef = mcp.NewTool("character_set_death_rolls",
	mcp.WithDescription("Set both death-roll counters (non-negative)."),
	mcp.WithNumber("successes", mcp.Required()),
	mcp.WithNumber("failures", mcp.Required()),
	mcp.WithBoolean("rallied", mcp.Description("Omit to leave the rallied flag unchanged")),
)

var updateDeathRollsToolDef = mcp.NewTool("character_update_death_rolls",
	mcp.WithDescription("Set one side of the death-roll pair."),
	mcp.WithString("kind", mcp.Required(), mcp.Enum("passed", "failed")),
	mcp.WithNumber("value", mcp.Required(), mcp.Description("Non-negative count")),
)

var updateAttributeToolDef = mcp.NewTool("character_update_attribute",
	mcp.WithDescription("Set an attribute. Setting CON or WIL for the first time also sets max HP or WP."),
	mcp.WithString("attribute", mcp.Required(), mcp.Enum("STR", "CON", "AGL", "INT", "WIL", "CHA")),
	mcp.WithNumber("value", mcp.Required()),
)

var increaseSkillToolDef = mcp.NewTool("character_increase_skill",
	mcp.WithDescription("Raise a skill by one level (max 18). Clears the study target if it was this skill."),
	mcp.WithString("skill", mcp.Required()),
)

var addHeroicAbilityToolDef = mcp.NewTool("character_add_heroic_ability",
	mcp.WithDescription("Add a heroic ability. Already-known abilities are ignored."),
	mcp.WithString("name", mcp.Required()),
)

var learnSpellToolDef = mcp.NewTool("character_learn_spell",
	mcp.WithDescription("Learn a spell, into the primary school list when school matches, else the general list."),
	mcp.WithString("name", mcp.Required()),
	mcp.WithString("school", mcp.Description("Magic school, empty for general spells")),
)

var addMagicSchoolToolDef = mcp.NewTool("character_add_magic_school",
	mcp.WithDescription("Record a magic school skill level. The first school becomes the primary school."),
	mcp.WithString("name", mcp.Required()),
	mcp.WithNumber("level", mcp.Required()),
)

var setStudyToolDef = mcp.NewTool("character_set_study",
	mcp.WithDescription("Set the skill under study. Omit skill to clear it."),
	mcp.WithString("skill"),
)

var increaseMaxStatToolDef = mcp.NewTool("character_increase_max_stat",
	mcp.WithDescription("Raise max HP or max WP by one."),
	mcp.WithString("stat", mcp.Required(), mcp.Enum("hp", "wp")),
)

// Encounter tools

var encounterShowToolDef = mcp.NewTool("encounter_show",
	mcp.WithDescription("Show the active encounter, this character's combatant, and the roster in initiative order."),
)

var encounterRefreshToolDef = mcp.NewTool("encounter_refresh",
	mcp.WithDescription("Re-fetch the party's active encounter."),
)

var drawInitiativeToolDef = mcp.NewTool("encounter_draw_initiative",
	mcp.WithDescription("Roll a d10 initiative for this character's combatant. Refused outside an active encounter."),
)

var setInitiativeToolDef = mcp.NewTool("encounter_set_initiative",
	mcp.WithDescription("Set a combatant's initiative to a chosen value."),
	mcp.WithString("combatant_id", mcp.Required()),
	mcp.WithNumber("value", mcp.Required(), mcp.Description("1-10")),
)

var updateCombatantToolDef = mcp.NewTool("encounter_update_combatant",
	mcp.WithDescription("Update a combatant row. HP/WP changes on this character's row are mirrored onto the character."),
	mcp.WithString("combatant_id", mcp.Required()),
	mcp.WithNumber("initiative_roll"),
	mcp.WithBoolean("clear_initiative"),
	mcp.WithNumber("current_hp"),
	mcp.WithNumber("current_wp"),
)

// Catalog tools

var listItemsToolDef = mcp.NewTool("catalog_list_items",
	mcp.WithDescription("List the item catalog."),
)

var listHeroicAbilitiesToolDef = mcp.NewTool("catalog_list_heroic_abilities",
	mcp.WithDescription("List the heroic ability catalog."),
)
