package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/hearth/internal/app"
	"github.com/hpungsan/hearth/internal/config"
	"github.com/hpungsan/hearth/internal/logging"
	"github.com/hpungsan/hearth/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"show": true, "hp": true, "wp": true, "condition": true, "rest": true,
	"death-rolls": true, "attribute": true, "skill-up": true, "study": true,
	"ability": true, "spell": true, "school": true, "max-stat": true,
	"encounter": true, "initiative": true, "combatant": true,
	"seed": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
// Global flags (--character, --user) may precede the subcommand.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	for _, arg := range args[1:] {
		if cliCommands[arg] {
			return true
		}
		if isHelpOrVersionArg(arg) {
			return true
		}
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	return isHelpOrVersionArg(args[1]) || args[1] == "help"
}

func isHelpOrVersionArg(arg string) bool {
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                     _   _
  | |__   ___  __ _ _ __| |_| |__
  | '_ \ / _ \/ _` + "`" + ` | '__| __| '_ \
  | | | |  __/ (_| | |  | |_| | | |
  |_| |_|\___|\__,_|_|   \__|_| |_|

  Dragonbane character sheet companion

  Usage: hearth --character <id> <command> [options]
         hearth --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		cliApp := newCLIApp(nil)
		if err := cliApp.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	cliMode := isCLIMode(os.Args)
	if !cliMode && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", strings.Join(os.Args[1:], " "))
		fmt.Fprintf(os.Stderr, "Run 'hearth --help' for usage.\n")
		os.Exit(1)
	}

	if err := run(context.Background(), cliMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cliMode bool) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, ".hearth")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Logs go to stderr; stdout belongs to CLI output or the MCP transport.
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	a, err := app.Open(ctx, cfg, baseDir, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer a.Close()

	if cliMode {
		return newCLIApp(a).RunContext(ctx, os.Args)
	}

	// MCP server mode (default)
	log.Info("starting MCP server", zap.String("version", Version))
	return mcp.Run(a.Store, cfg, Version, log)
}
