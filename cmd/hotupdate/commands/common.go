// Package commands implements the hotupdate CLI subcommands.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"git.home.luguber.info/inful/hotupdate/internal/config"
	"git.home.luguber.info/inful/hotupdate/internal/updater"
)

// Global is shared state passed to every command's Run method.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI is the root command with global flags.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"hotupdate.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve    ServeCmd    `cmd:"" help:"Run the host bridge and content server until interrupted"`
	Stage    StageCmd    `cmd:"" help:"Download and stage an update"`
	Activate ActivateCmd `cmd:"" help:"Install the staged update now"`
	Confirm  ConfirmCmd  `cmd:"" help:"Confirm that a version started successfully"`
	Ignored  IgnoredCmd  `cmd:"" help:"List versions that were rolled back"`
	History  HistoryCmd  `cmd:"" help:"List installed versions in order"`
	Status   StatusCmd   `cmd:"" help:"Show the update state"`
	Init     InitCmd     `cmd:"" help:"Write an example configuration file"`
	Version  VersionCmd  `cmd:"" help:"Show version and exit"`
}

// AfterApply runs after flag parsing and installs the default logger.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig loads the configuration and re-creates the logger from its
// logging section. --verbose always wins over the configured level.
func loadConfig(g *Global, root *CLI) (*config.Config, error) {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	g.Logger = newLogger(cfg, root.Verbose)
	slog.SetDefault(g.Logger)
	return cfg, nil
}

func newLogger(cfg *config.Config, verbose bool) *slog.Logger {
	level := cfg.Logging.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Logging.Format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// withUpdater opens the updater for a one-shot command, runs fn and closes
// the updater again. A one-shot command is not an application launch, so a
// staged update stays pending for 'activate'.
func withUpdater(g *Global, root *CLI, fn func(context.Context, *updater.Updater) error) error {
	cfg, err := loadConfig(g, root)
	if err != nil {
		return err
	}
	ctx := context.Background()
	u, err := updater.Open(ctx, cfg, updater.Options{Logger: g.Logger, KeepPending: true})
	if err != nil {
		return err
	}
	runErr := fn(ctx, u)
	if err := u.Close(); err != nil {
		g.Logger.Warn("Failed to close updater", "error", err)
	}
	return runErr
}

func (g *Global) out() io.Writer {
	if g.Out != nil {
		return g.Out
	}
	return os.Stdout
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// check converts a facade result into an error for the CLI adapter.
func check(res updater.Result) error {
	_, err := res.ToTuple()
	return err
}
