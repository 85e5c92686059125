package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/db"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/llm"
	"github.com/avelhart/chronicle/internal/mcp"
	"github.com/avelhart/chronicle/internal/vault"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"collect": true, "expand": true, "runs": true,
	"notes": true, "doctor": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false // Default → MCP server
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _                     _      _
   ___| |__  _ __ ___  _ __ (_) ___| | ___
  / __| '_ \| '__/ _ \| '_ \| |/ __| |/ _ \
 | (__| | | | | | (_) | | | | | (__| |  __/
  \___|_| |_|_|  \___/|_| |_|_|\___|_|\___|

  Historical event notes for an Obsidian vault

  Usage: chronicle <command> [options]
         chronicle --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before any setup (no config needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	database, err := db.Init(cfg.HomeDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	deps := &appDeps{
		db:  database,
		cfg: cfg,
		gen: generate.New(llm.NewOpenAIClient(cfg), generate.Options{
			MaxTokensPerRequest: cfg.MaxTokensPerRequest,
			Temperature:         cfg.Temperature,
			Pacing:              time.Second,
		}),
		events:  vault.New(cfg.EventsDir(), cfg.EventFolder),
		details: vault.New(cfg.DetailsDir(), cfg.DetailFolder),
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(deps)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'chronicle --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, deps.gen, deps.events, deps.details, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
