package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/hearth/internal/app"
	"github.com/hpungsan/hearth/internal/character"
	"github.com/hpungsan/hearth/internal/combat"
	"github.com/hpungsan/hearth/internal/errors"
	"github.com/hpungsan/hearth/internal/rules"
	"github.com/hpungsan/hearth/internal/web"
)

// characterView is printed after every character command.
type characterView struct {
	Character *character.Character `json:"character"`
	Status    string               `json:"status,omitempty"`
	SaveError string               `json:"save_error,omitempty"`
}

// newCLIApp creates the CLI application with all commands.
// a is nil when only help or version output is needed.
func newCLIApp(a *app.App) *cli.App {
	cliApp := &cli.App{
		Name:    "hearth",
		Usage:   "Dragonbane character sheet and encounter companion",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "character", Aliases: []string{"c"}, EnvVars: []string{"HEARTH_CHARACTER"}, Usage: "Character ID"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Owning user ID (defaults to default_user)"},
		},
		Commands: []*cli.Command{
			showCmd(a),
			statCmd(a, "hp", character.StatHP),
			statCmd(a, "wp", character.StatWP),
			conditionCmd(a),
			restCmd(a),
			deathRollsCmd(a),
			attributeCmd(a),
			skillUpCmd(a),
			studyCmd(a),
			abilityCmd(a),
			spellCmd(a),
			schoolCmd(a),
			maxStatCmd(a),
			encounterCmd(a),
			initiativeCmd(a),
			combatantCmd(a),
			seedCmd(a),
			serveCmd(a),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	cliApp.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return cliApp
}

// withCharacter loads the character named by --character before running fn,
// then prints the character (or fn's own result when it returns one).
func withCharacter(a *app.App, fn func(c *cli.Context) (any, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		id := c.String("character")
		if id == "" {
			return outputError(errors.NewInvalidRequest("--character is required"))
		}
		if err := a.LoadCharacter(c.Context, id, c.String("user")); err != nil {
			return outputError(err)
		}

		result, err := fn(c)
		if err != nil {
			return outputError(err)
		}
		if result == nil {
			result = newCharacterView(a)
		}
		return outputJSON(c.App.Writer, result)
	}
}

func newCharacterView(a *app.App) characterView {
	view := characterView{Status: a.Store.Status()}
	if ch, ok := a.Store.Character(); ok {
		view.Character = &ch
	}
	if err := a.Store.SaveError(); err != nil {
		view.SaveError = err.Error()
	}
	return view
}

// showCmd creates the show command.
func showCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the character",
		Action: withCharacter(a, func(*cli.Context) (any, error) {
			return nil, nil
		}),
	}
}

// statCmd creates the hp and wp commands.
func statCmd(a *app.App, name string, stat character.Stat) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: fmt.Sprintf("Adjust current %s by a signed delta (clamped to [0, max])", strings.ToUpper(name)),
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "delta", Aliases: []string{"d"}, Required: true, Usage: "Signed change, e.g. --delta=-3"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			return nil, a.Store.AdjustStat(c.Context, stat, c.Int("delta"))
		}),
	}
}

// conditionCmd creates the condition command.
func conditionCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "condition",
		Usage:     "Toggle a condition (exhausted, sickly, dazed, angry, scared, disheartened)",
		ArgsUsage: "<condition>",
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			name, err := stringArg(c, 0, "condition")
			if err != nil {
				return nil, err
			}
			return nil, a.Store.ToggleCondition(c.Context, character.Condition(strings.ToLower(name)))
		}),
	}
}

// restCmd creates the rest command.
func restCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "rest",
		Usage:     "Take a round, stretch, or shift rest",
		ArgsUsage: "<round|stretch|shift>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "healer", Usage: "A healer is present (stretch rest heals 2d6)"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			kind, err := stringArg(c, 0, "rest kind")
			if err != nil {
				return nil, err
			}
			out, err := a.Store.PerformRest(c.Context, rules.RestKind(strings.ToLower(kind)), c.Bool("healer"))
			if err != nil {
				return nil, err
			}
			return struct {
				Rest rules.RestOutcome `json:"rest"`
				characterView
			}{out, newCharacterView(a)}, nil
		}),
	}
}

// deathRollsCmd creates the death-rolls command.
func deathRollsCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "death-rolls",
		Usage: "Set death-roll counters; with only one of --passed/--failed the other side is kept",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "passed", Usage: "Successful death rolls"},
			&cli.IntFlag{Name: "failed", Usage: "Failed death rolls"},
			&cli.BoolFlag{Name: "rallied", Usage: "Set the rallied flag (use --rallied=false to clear)"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			var rallied *bool
			if c.IsSet("rallied") {
				rallied = character.Ptr(c.Bool("rallied"))
			}
			switch {
			case c.IsSet("passed") && c.IsSet("failed"):
				return nil, a.Store.SetDeathRollState(c.Context, c.Int("passed"), c.Int("failed"), rallied)
			case c.IsSet("passed"):
				return nil, a.Store.UpdateDeathRolls(c.Context, rules.DeathRollPassed, c.Int("passed"))
			case c.IsSet("failed"):
				return nil, a.Store.UpdateDeathRolls(c.Context, rules.DeathRollFailed, c.Int("failed"))
			case rallied != nil:
				cur, _ := a.Store.Character()
				return nil, a.Store.SetDeathRollState(c.Context, cur.DeathRollsPassed, cur.DeathRollsFailed, rallied)
			default:
				return nil, errors.NewInvalidRequest("one of --passed, --failed, --rallied is required")
			}
		}),
	}
}

// attributeCmd creates the attribute command.
func attributeCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "attribute",
		Usage:     "Set an attribute (STR, CON, AGL, INT, WIL, CHA)",
		ArgsUsage: "<attribute> <value>",
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			name, err := stringArg(c, 0, "attribute")
			if err != nil {
				return nil, err
			}
			value, err := intArg(c, 1, "value")
			if err != nil {
				return nil, err
			}
			return nil, a.Store.UpdateAttribute(c.Context, character.Attribute(strings.ToUpper(name)), value)
		}),
	}
}

// skillUpCmd creates the skill-up command.
func skillUpCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "skill-up",
		Usage:     "Raise a skill by one level (max 18)",
		ArgsUsage: "<skill>",
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			return nil, a.Store.IncreaseSkillLevel(c.Context, strings.Join(c.Args().Slice(), " "))
		}),
	}
}

// studyCmd creates the study command.
func studyCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "study",
		Usage:     "Set the skill under study, or clear it with no argument",
		ArgsUsage: "[skill]",
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			var skill *string
			if c.NArg() > 0 {
				skill = character.Ptr(strings.Join(c.Args().Slice(), " "))
			}
			return nil, a.Store.SetSkillUnderStudy(c.Context, skill)
		}),
	}
}

// abilityCmd creates the ability command.
func abilityCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "ability",
		Usage:     "Add a heroic ability",
		ArgsUsage: "<name>",
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			return nil, a.Store.AddHeroicAbility(c.Context, strings.Join(c.Args().Slice(), " "))
		}),
	}
}

// spellCmd creates the spell command.
func spellCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "spell",
		Usage:     "Learn a spell",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "school", Aliases: []string{"s"}, Usage: "Magic school (empty for a general spell)"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			spell := character.Spell{Name: strings.Join(c.Args().Slice(), " "), School: c.String("school")}
			return nil, a.Store.LearnSpell(c.Context, spell)
		}),
	}
}

// schoolCmd creates the school command.
func schoolCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "school",
		Usage:     "Record a magic school and its skill level",
		ArgsUsage: "<name>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "level", Aliases: []string{"l"}, Required: true, Usage: "School skill level"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			school := character.MagicSchool{Name: strings.Join(c.Args().Slice(), " ")}
			return nil, a.Store.AddMagicSchool(c.Context, school, c.Int("level"))
		}),
	}
}

// maxStatCmd creates the max-stat command.
func maxStatCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "max-stat",
		Usage:     "Raise max HP or max WP by one",
		ArgsUsage: "<hp|wp>",
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			stat, err := stringArg(c, 0, "stat")
			if err != nil {
				return nil, err
			}
			newMax, err := a.Store.IncreaseMaxStat(c.Context, character.Stat(strings.ToLower(stat)))
			if err != nil {
				return nil, err
			}
			return struct {
				NewMax int `json:"new_max"`
				characterView
			}{newMax, newCharacterView(a)}, nil
		}),
	}
}

// encounterCmd creates the encounter command.
func encounterCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "encounter",
		Usage: "Show the party's active encounter and initiative order",
		Action: withCharacter(a, func(*cli.Context) (any, error) {
			return a.Combat.Snapshot(), nil
		}),
	}
}

// initiativeCmd creates the initiative command.
func initiativeCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "initiative",
		Usage: "Draw initiative for the character, or set --value on --combatant",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "combatant", Usage: "Combatant ID to set"},
			&cli.IntFlag{Name: "value", Usage: "Chosen initiative (1-10)"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			if c.IsSet("combatant") || c.IsSet("value") {
				if !c.IsSet("combatant") || !c.IsSet("value") {
					return nil, errors.NewInvalidRequest("--combatant and --value must be given together")
				}
				cb, err := a.Combat.SetInitiativeForCombatant(c.Context, c.String("combatant"), c.Int("value"))
				if err != nil {
					return nil, err
				}
				return cb, nil
			}
			out, err := a.Combat.DrawInitiative(c.Context)
			if err != nil {
				return nil, err
			}
			return struct {
				combat.InitiativeOutcome
				Status string `json:"status,omitempty"`
			}{out, a.Store.Status()}, nil
		}),
	}
}

// combatantCmd creates the combatant command.
func combatantCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:      "combatant",
		Usage:     "Update a combatant row",
		ArgsUsage: "[options] <combatant-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "hp", Usage: "Current HP"},
			&cli.IntFlag{Name: "wp", Usage: "Current WP"},
			&cli.IntFlag{Name: "initiative", Usage: "Initiative roll"},
			&cli.BoolFlag{Name: "clear-initiative", Usage: "Clear the initiative roll"},
		},
		Action: withCharacter(a, func(c *cli.Context) (any, error) {
			id, err := stringArg(c, 0, "combatant id")
			if err != nil {
				return nil, err
			}
			var u character.CombatantUpdate
			if c.IsSet("hp") {
				u.CurrentHP = character.Ptr(c.Int("hp"))
			}
			if c.IsSet("wp") {
				u.CurrentWP = character.Ptr(c.Int("wp"))
			}
			if c.IsSet("initiative") {
				u.InitiativeRoll = character.Ptr(c.Int("initiative"))
			}
			u.ClearInitiative = c.Bool("clear-initiative")
			cb, err := a.Combat.UpdateCombatant(c.Context, id, u)
			if err != nil {
				return nil, err
			}
			return cb, nil
		}),
	}
}

// seedCmd creates the seed command.
func seedCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create a sample character, party encounter, and reference catalogs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "party", Value: "party-1", Usage: "Party ID for the character and encounter"},
			&cli.BoolFlag{Name: "no-encounter", Usage: "Skip creating an active encounter"},
		},
		Action: func(c *cli.Context) error {
			userID := c.String("user")
			if userID == "" {
				userID = a.Config.DefaultUser
			}
			if userID == "" {
				return outputError(errors.NewInvalidRequest("--user or default_user is required"))
			}
			out, err := seed(c.Context, a, userID, c.String("party"), !c.Bool("no-encounter"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, out)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(a *app.App) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the character session over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("bind") {
				a.Config.WebBind = c.String("bind")
			}
			if c.IsSet("port") {
				a.Config.WebPort = c.Int("port")
			}
			if id := c.String("character"); id != "" {
				if err := a.LoadCharacter(c.Context, id, c.String("user")); err != nil {
					return outputError(err)
				}
			}
			srv := web.NewServer(a.Store, a.Metrics, a.Config, Version, a.Log)
			if err := web.Run(c.Context, srv, a.Log); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// seedOutput lists the rows created by seed.
type seedOutput struct {
	CharacterID  string   `json:"character_id"`
	UserID       string   `json:"user_id"`
	PartyID      string   `json:"party_id"`
	EncounterID  string   `json:"encounter_id,omitempty"`
	CombatantIDs []string `json:"combatant_ids,omitempty"`
	Items        int      `json:"items"`
	Abilities    int      `json:"heroic_abilities"`
}

func seed(ctx context.Context, a *app.App, userID, partyID string, withEncounter bool) (*seedOutput, error) {
	gw := a.Gateway
	ch := &character.Character{
		UserID:    userID,
		PartyID:   character.Ptr(partyID),
		Name:      "Wenna Ashwood",
		CurrentHP: 12,
		MaxHP:     12,
		CurrentWP: 14,
		MaxWP:     14,
		Attributes: map[character.Attribute]int{
			character.AttrStrength: 10, character.AttrConstitution: 12, character.AttrAgility: 14,
			character.AttrIntelligence: 13, character.AttrWillpower: 14, character.AttrCharisma: 9,
		},
		SkillLevels:     map[string]int{"Awareness": 10, "Swords": 12, "Elementalism": 11},
		HeroicAbilities: []string{"Veteran"},
		Spells: character.Spells{
			School: &character.SchoolSpells{Name: "Elementalism", Spells: []string{"Fireball"}},
		},
		Equipment: character.Equipment{
			Inventory: []character.InventoryItem{{Name: "Rope, hemp", Quantity: 1}, {Name: "Torch", Quantity: 3}},
			Equipped:  map[string]string{"weapon1": "Broadsword"},
			Money:     character.Money{Silver: 12, Copper: 40},
		},
		Notes:      "# Backstory\nLeft the *Ashwood* mill after the flood.",
		Appearance: "Soot-streaked cloak, **red** scarf.",
	}
	if err := gw.InsertCharacter(ctx, ch); err != nil {
		return nil, err
	}
	out := &seedOutput{CharacterID: ch.ID, UserID: userID, PartyID: partyID}

	items := []character.Item{
		{Name: "Broadsword", Category: "weapon", Weight: 1, Cost: "12 silver"},
		{Name: "Rope, hemp", Category: "gear", Weight: 1, Cost: "2 silver"},
		{Name: "Torch", Category: "gear", Weight: 1, Cost: "1 copper"},
	}
	for i := range items {
		if err := gw.InsertItem(ctx, &items[i]); err != nil {
			return nil, err
		}
	}
	abilities := []character.HeroicAbility{
		{Name: "Veteran", WillpowerCost: 0, Requirement: "Swords 12", Description: "Draw two initiative cards and keep one."},
		{Name: "Defensive", WillpowerCost: 3, Description: "Parry as a free action."},
	}
	for i := range abilities {
		if err := gw.InsertHeroicAbility(ctx, &abilities[i]); err != nil {
			return nil, err
		}
	}
	out.Items, out.Abilities = len(items), len(abilities)

	if !withEncounter {
		return out, nil
	}
	enc := &character.Encounter{PartyID: partyID, Name: "Ambush at the ford", Status: character.EncounterStatusActive}
	if err := gw.InsertEncounter(ctx, enc); err != nil {
		return nil, err
	}
	out.EncounterID = enc.ID
	combatants := []*character.Combatant{
		{EncounterID: enc.ID, CharacterID: character.Ptr(ch.ID), Name: ch.Name, CurrentHP: ch.CurrentHP, CurrentWP: ch.CurrentWP},
		{EncounterID: enc.ID, Name: "Goblin archer", CurrentHP: 7},
		{EncounterID: enc.ID, Name: "Goblin chieftain", CurrentHP: 12},
	}
	for _, cb := range combatants {
		if err := gw.InsertCombatant(ctx, cb); err != nil {
			return nil, err
		}
		out.CombatantIDs = append(out.CombatantIDs, cb.ID)
	}
	return out, nil
}

// Helper functions

// outputJSON marshals result to w as JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if hErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", hErr.Code, hErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stringArg returns positional argument i, or an INVALID_REQUEST naming it.
func stringArg(c *cli.Context, i int, name string) (string, error) {
	v := strings.TrimSpace(c.Args().Get(i))
	if v == "" {
		return "", errors.NewInvalidRequest(name + " is required")
	}
	return v, nil
}

// intArg parses positional argument i as a signed integer ("+3", "-2", "5").
func intArg(c *cli.Context, i int, name string) (int, error) {
	s, err := stringArg(c, i, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("%s must be an integer (got %q)", name, s))
	}
	return v, nil
}
