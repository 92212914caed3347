package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/hotupdate/internal/updater"
)

// StageCmd implements the 'stage' command.
type StageCmd struct {
	URL     string `short:"u" name:"url" xor:"source" required:"" help:"Update container URL"`
	File    string `short:"f" name:"file" xor:"source" required:"" type:"existingfile" help:"Local update container"`
	Version string `help:"Version label of the update (defaults to \"pending\")"`
}

func (s *StageCmd) Run(g *Global, root *CLI) error {
	rawURL := s.URL
	if s.File != "" {
		abs, err := filepath.Abs(s.File)
		if err != nil {
			return err
		}
		rawURL = "file://" + filepath.ToSlash(abs)
	}
	return withUpdater(g, root, func(ctx context.Context, u *updater.Updater) error {
		if err := check(u.Stage(ctx, &updater.StageRequest{URL: rawURL, Version: s.Version})); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(g.out(), "Update staged")
		return nil
	})
}

// ActivateCmd implements the 'activate' command.
type ActivateCmd struct{}

func (a *ActivateCmd) Run(g *Global, root *CLI) error {
	return withUpdater(g, root, func(ctx context.Context, u *updater.Updater) error {
		if err := check(u.Activate(ctx)); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(g.out(), "Update installed")
		return nil
	})
}

// ConfirmCmd implements the 'confirm' command.
type ConfirmCmd struct {
	Version string `arg:"" optional:"" help:"Version to confirm"`
}

func (c *ConfirmCmd) Run(g *Global, root *CLI) error {
	return withUpdater(g, root, func(ctx context.Context, u *updater.Updater) error {
		if err := check(u.Confirm(ctx, c.Version)); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Version %s confirmed\n", c.Version)
		return nil
	})
}

// IgnoredCmd implements the 'ignored' command.
type IgnoredCmd struct{}

func (i *IgnoredCmd) Run(g *Global, root *CLI) error {
	return withUpdater(g, root, func(ctx context.Context, u *updater.Updater) error {
		return printJSON(g.out(), u.ListIgnored(ctx))
	})
}

// HistoryCmd implements the 'history' command.
type HistoryCmd struct{}

func (h *HistoryCmd) Run(g *Global, root *CLI) error {
	return withUpdater(g, root, func(ctx context.Context, u *updater.Updater) error {
		return printJSON(g.out(), u.ListHistory(ctx))
	})
}

// StatusCmd implements the 'status' command.
type StatusCmd struct{}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	return withUpdater(g, root, func(ctx context.Context, u *updater.Updater) error {
		return printJSON(g.out(), u.Status(ctx))
	})
}
