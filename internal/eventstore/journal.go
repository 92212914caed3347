package eventstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/hotupdate/internal/config"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// Journal records lifecycle events in a Store, folds them into an
// OperationProjection and forwards them to publishers. Recording never fails
// the caller: journal problems are logged.
type Journal struct {
	store      Store
	projection *OperationProjection
	publishers []Publisher
	logger     *slog.Logger
}

// NewJournal wraps store. Publishers are optional.
func NewJournal(store Store, logger *slog.Logger, publishers ...Publisher) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:      store,
		projection: NewOperationProjection(store, 100),
		publishers: publishers,
		logger:     logger,
	}
}

// Open creates the SQLite journal at cfg.JournalPath() and, when enabled,
// the NATS publisher.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Journal, error) {
	path := cfg.JournalPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, wrap(ErrDatabaseOpenFailed, err)
	}
	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}

	var pubs []Publisher
	if cfg.Events.NATS.Enabled {
		pub, err := NewNATSPublisher(cfg.Events.NATS.URL, cfg.Events.NATS.Subject)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("events: %w", err)
		}
		pubs = append(pubs, pub)
	}

	j := NewJournal(store, logger, pubs...)
	if err := j.projection.Rebuild(ctx); err != nil {
		logger.Warn("Failed to rebuild operation history", logfields.Error(err))
	}
	return j, nil
}

// Record stores e and fans it out.
func (j *Journal) Record(ctx context.Context, e Event) {
	if e == nil {
		return
	}
	if _, err := j.store.Append(ctx, e); err != nil {
		j.logger.Warn("Failed to journal lifecycle event",
			slog.String("type", e.Type()),
			logfields.OpID(e.OpID()),
			logfields.Error(err))
	}
	j.projection.Apply(e)
	for _, p := range j.publishers {
		if err := p.Publish(ctx, e); err != nil {
			j.logger.Warn("Failed to publish lifecycle event",
				slog.String("type", e.Type()),
				logfields.OpID(e.OpID()),
				logfields.Error(err))
		}
	}
}

// Operations returns recent operations, newest first.
func (j *Journal) Operations() []OperationSummary {
	return j.projection.Operations()
}

// Events returns the journal entries of one operation.
func (j *Journal) Events(ctx context.Context, opID string) ([]Event, error) {
	return j.store.GetByOpID(ctx, opID)
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	return j.store.Recent(ctx, limit)
}

// Close closes publishers and the store.
func (j *Journal) Close() error {
	var errs []error
	for _, p := range j.publishers {
		errs = append(errs, p.Close())
	}
	errs = append(errs, j.store.Close())
	return errors.Join(errs...)
}
