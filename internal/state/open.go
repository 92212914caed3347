package state

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/hotupdate/internal/config"
)

// Open returns the backend selected by cfg.State.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.State.Backend {
	case config.StateBackendBadger:
		return NewBadgerStore(cfg.StatePath(), logger)
	case config.StateBackendJSON, "":
		return NewJSONStore(cfg.StatePath())
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}
