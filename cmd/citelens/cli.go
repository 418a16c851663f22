package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/ops"
	"github.com/hpungsan/citelens/internal/web"
)

// appEnv carries the shared dependencies of every command.
type appEnv struct {
	db     *sql.DB
	cfg    *config.Config
	logger *zap.Logger
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *appEnv) *cli.App {
	if env.logger == nil {
		env.logger = zap.NewNop()
	}
	app := &cli.App{
		Name:    "citelens",
		Usage:   "Reconstruct search queries, sources and citations from captured assistant traffic",
		Version: Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "Debug logging to stderr"},
		},
		Commands: []*cli.Command{
			ingestCmd(env),
			fetchCmd(env),
			listCmd(env),
			deleteCmd(env),
			exportCmd(env),
			importCmd(env),
			serveCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// ingestCmd creates the ingest command.
func ingestCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Process a capture log (file or stdin) and store the interaction",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "label", Aliases: []string{"l"}, Usage: "Label for the stored interaction"},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Print the full result without storing it"},
		},
		Action: func(c *cli.Context) error {
			r, closeFn, err := captureSource(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			defer closeFn()

			input := ops.IngestInput{Reader: r}
			if label := c.String("label"); label != "" {
				input.Label = &label
			}

			if c.Bool("dry-run") {
				output, err := ops.Analyze(c.Context, env.cfg, env.logger, input)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			output, err := ops.Ingest(c.Context, env.db, env.cfg, env.logger, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// fetchCmd creates the fetch command.
func fetchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch a stored interaction by ID",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-text", Usage: "Exclude response_text from output"},
		},
		Action: func(c *cli.Context) error {
			input := ops.FetchInput{ID: c.Args().First()}
			if c.Bool("no-text") {
				includeText := false
				input.IncludeText = &includeText
			}

			output, err := ops.Fetch(c.Context, env.db, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored interactions, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: ops.DefaultListLimit, Usage: "Max items to return"},
			&cli.IntFlag{Name: "offset", Value: 0, Usage: "Pagination offset"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.List(c.Context, env.db, ops.ListInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a stored interaction",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.Delete(c.Context, env.db, ops.DeleteInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export interactions to a JSONL file",
		ArgsUsage: "[id...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output file path (default: ~/.citelens/exports/)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Export(c.Context, env.db, env.cfg, ops.ExportInput{
				Path: c.String("path"),
				IDs:  c.Args().Slice(),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import interactions from a JSONL export",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Import(c.Context, env.db, env.cfg, ops.ImportInput{
				Path: c.String("path"),
				Mode: ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the web UI and /metrics endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8470, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv, err := web.NewServer(env.db, env.cfg, env.logger, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(err)
			}
			return web.Run(srv, env.logger)
		},
	}
}

// Helper functions

// captureSource opens the named capture log, or stdin for "-" or no name
// when input is piped. Local files are trusted; path restrictions apply to
// MCP clients only.
func captureSource(name string) (io.Reader, func(), error) {
	if name == "" || name == "-" {
		if !stdinHasData() {
			return nil, nil, errors.NewInvalidRequest("capture log path required (or pipe it via stdin)")
		}
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(name)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, nil, errors.NewFileNotFound(name)
		}
		return nil, nil, errors.NewInternal(fmt.Errorf("failed to open capture log: %w", err))
	}
	return f, func() { f.Close() }, nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var citeErr *errors.CiteError
	if stderrors.As(err, &citeErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", citeErr.Code, citeErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}
