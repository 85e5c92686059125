package main

import (
	"bufio"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/avelhart/chronicle/internal/config"
	"github.com/avelhart/chronicle/internal/errors"
	"github.com/avelhart/chronicle/internal/generate"
	"github.com/avelhart/chronicle/internal/ops"
	"github.com/avelhart/chronicle/internal/vault"
	"github.com/avelhart/chronicle/internal/web"
)

// appDeps bundles the shared dependencies the commands run against.
type appDeps struct {
	db      *sql.DB
	cfg     *config.Config
	gen     *generate.Generator
	events  *vault.Vault
	details *vault.Vault
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(deps *appDeps) *cli.App {
	app := &cli.App{
		Name:    "chronicle",
		Usage:   "Historical event notes for an Obsidian vault",
		Version: Version,
		Commands: []*cli.Command{
			collectCmd(deps),
			expandCmd(deps),
			runsCmd(deps),
			notesCmd(deps),
			doctorCmd(deps),
			serveCmd(deps),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// collectCmd creates the collect command. It is the one interactive command:
// it prompts for its inputs instead of taking flags, and reports in prose
// instead of JSON.
func collectCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "Generate an event note (prompts for event, time range and chunks)",
		Action: func(c *cli.Context) error {
			if err := deps.cfg.Validate(); err != nil {
				return outputError(err)
			}

			scanner := bufio.NewScanner(os.Stdin)

			event, err := promptLine(scanner, "Event name: ")
			if err != nil {
				return outputError(err)
			}
			if event == "" {
				return outputError(errors.NewInvalidRequest("event name is required"))
			}

			timeRange, err := promptLine(scanner, "Time range (blank for none): ")
			if err != nil {
				return outputError(err)
			}

			chunks, err := promptInt(scanner, fmt.Sprintf("Chunks [%d]: ", deps.cfg.DefaultChunks), deps.cfg.DefaultChunks)
			if err != nil {
				return outputError(err)
			}
			if chunks < 1 {
				return outputError(errors.NewInvalidRequest("chunk count must be at least 1"))
			}

			fmt.Println(planLine(generate.Request{
				EventName:  event,
				TimeRange:  timeRange,
				ChunkCount: chunks,
			}))

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			output, err := ops.Collect(ctx, deps.db, deps.gen, deps.events, ops.CollectInput{
				EventName:      event,
				TimeRange:      timeRange,
				ChunkCount:     chunks,
				MaxCalls:       deps.cfg.MaxCalls,
				MaxTotalTokens: deps.cfg.MaxTokensTotal,
			})
			if err != nil {
				return outputError(err)
			}

			printCollectSummary(output)
			return nil
		},
	}
}

// expandCmd creates the expand command.
func expandCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "expand",
		Usage: "Expand {…} references in event notes into linked detail notes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "note", Aliases: []string{"n"}, Usage: "Single note to expand (Name.md); all event notes when omitted"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Max API calls for this run (defaults to MAX_API_CALLS)"},
		},
		Action: func(c *cli.Context) error {
			if err := deps.cfg.Validate(); err != nil {
				return outputError(err)
			}

			maxCalls := deps.cfg.MaxCalls
			if limit := c.Int("limit"); limit > 0 {
				maxCalls = limit
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			output, err := ops.Expand(ctx, deps.db, deps.gen, deps.events, deps.details, ops.ExpandInput{
				Note:           c.String("note"),
				MaxCalls:       maxCalls,
				MaxTotalTokens: deps.cfg.MaxTokensTotal,
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List the generation ledger and API spend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: collect|expand"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum rows to return"},
			&cli.StringFlag{Name: "since", Usage: "Window usage totals to the last N days (e.g., 7d)"},
			&cli.StringFlag{Name: "prune", Usage: "Delete runs older than N days first (e.g., 30d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.RunsInput{
				Kind:  c.String("kind"),
				Limit: c.Int("limit"),
			}

			if since := c.String("since"); since != "" {
				days, err := parseDuration(since)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.SinceDays = &days
			}
			if prune := c.String("prune"); prune != "" {
				days, err := parseDuration(prune)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.PruneDays = &days
			}

			output, err := ops.Runs(deps.db, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// notesCmd creates the notes command.
func notesCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:      "notes",
		Usage:     "List vault notes, or print one",
		ArgsUsage: "[name.md]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "folder", Aliases: []string{"f"}, Usage: "Limit to one folder: events|details"},
		},
		Action: func(c *cli.Context) error {
			input := ops.NotesInput{
				Folder: c.String("folder"),
			}
			if c.NArg() > 0 {
				input.Name = c.Args().First()
			}

			output, err := ops.Notes(deps.events, deps.details, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// doctorCmd creates the doctor command.
func doctorCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check configuration, vault and ledger health",
		Action: func(c *cli.Context) error {
			output, err := ops.Doctor(deps.cfg, deps.db)
			if err != nil {
				return outputError(err)
			}

			if err := outputJSON(output); err != nil {
				return err
			}
			if !output.Healthy {
				return cli.Exit("configuration is not healthy", 1)
			}
			return nil
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(deps *appDeps) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the read-only vault viewer over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Aliases: []string{"b"}, Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8765, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(deps.db, deps.cfg, deps.events, deps.details, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var cErr *errors.ChronicleError
	if stderrors.As(err, &cErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", cErr.Code, cErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// promptLine prints a prompt and reads one trimmed line from the scanner.
func promptLine(scanner *bufio.Scanner, prompt string) (string, error) {
	fmt.Print(prompt)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", errors.NewInternal(err)
		}
		return "", errors.NewInvalidRequest("input ended before the prompt was answered")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// promptInt reads an integer answer, using def when the answer is blank.
func promptInt(scanner *bufio.Scanner, prompt string, def int) (int, error) {
	s, err := promptLine(scanner, prompt)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("chunk count must be a whole number, got %q", s))
	}
	return n, nil
}

// planLine describes the planned chunks before generation starts.
func planLine(req generate.Request) string {
	chunks := generate.Plan(req)
	if len(chunks) == 1 {
		return fmt.Sprintf("Generating %q in one part...", req.EventName)
	}

	ranges := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		if ch.TimeRange != "" {
			ranges = append(ranges, ch.TimeRange)
		}
	}
	// Sub-ranges are only worth showing when the span actually split.
	if len(ranges) == len(chunks) && ranges[0] != ranges[len(ranges)-1] {
		return fmt.Sprintf("Generating %q in %d parts (%s)...", req.EventName, len(chunks), strings.Join(ranges, ", "))
	}
	return fmt.Sprintf("Generating %q in %d parts...", req.EventName, len(chunks))
}

// printCollectSummary reports the run outcome in human terms.
func printCollectSummary(out *ops.CollectOutput) {
	if out.Created {
		fmt.Printf("Wrote %s\n", out.NotePath)
	} else {
		fmt.Println("Nothing generated; no note written.")
	}
	fmt.Printf("Parts %d/%d, calls %d, tokens %d/%d\n",
		out.ChunksDone, out.ChunksPlanned,
		out.Budget.CallsMade, out.Budget.TokensUsed, out.Budget.MaxTotalTokens)
	if out.StoppedReason != "" {
		fmt.Printf("Stopped early: %s\n", out.StoppedReason)
	}
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
