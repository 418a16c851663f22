package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/db"
	"github.com/hpungsan/citelens/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"ingest": true, "fetch": true, "list": true, "delete": true,
	"export": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	for _, arg := range os.Args[1:] {
		if cliCommands[arg] || isHelpFlag(arg) {
			return true
		}
		if !isGlobalFlag(arg) {
			return false
		}
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return isHelpFlag(arg) || arg == "help"
}

func isHelpFlag(arg string) bool {
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

func isGlobalFlag(arg string) bool {
	return arg == "--verbose" || arg == "-V"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// newLogger builds the process logger. Output always goes to stderr since
// stdout carries JSON results and the MCP stdio transport.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _ _       _
   ___(_) |_ ___| | ___ _ __  ___
  / __| | __/ _ \ |/ _ \ '_ \/ __|
 | (__| | ||  __/ |  __/ | | \__ \
  \___|_|\__\___|_|\___|_| |_|___/

  Search-and-citation capture analyzer

  Usage: citelens <command> [options]
         citelens --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	logger, err := newLogger(slices.ContainsFunc(os.Args[1:], isGlobalFlag))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Help and version need no database.
	if isHelpOrVersion() {
		app := newCLIApp(&appEnv{logger: logger})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Fatal("could not determine home directory", zap.Error(err))
	}
	baseDir := filepath.Join(homeDir, ".citelens")

	cwd, err := os.Getwd()
	if err != nil {
		logger.Fatal("could not determine working directory", zap.Error(err))
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	database, err := db.Init(baseDir)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	env := &appEnv{db: database, cfg: cfg, logger: logger}

	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument on a terminal is a typo, not an MCP client.
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'citelens --help' for usage.\n")
		database.Close()
		os.Exit(1)
	}

	if err := mcp.Run(database, cfg, logger, Version); err != nil {
		logger.Error("mcp server stopped", zap.Error(err))
		database.Close()
		os.Exit(1)
	}
}
