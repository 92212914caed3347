package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces updater keys inside the Badger keyspace.
const keyPrefix = "hotupdate/"

// BadgerStore implements Store on a Badger database. Writes are synchronous.
type BadgerStore struct {
	db *badger.DB
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens a Badger database in dir. An empty dir opens an
// in-memory database.
func NewBadgerStore(dir string, logger *slog.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerLookup(bt *badger.Txn) func(string) ([]byte, bool) {
	return func(key string) ([]byte, bool) {
		item, err := bt.Get([]byte(keyPrefix + key))
		if err != nil {
			// ErrKeyNotFound and read errors alike read as absent.
			return nil, false
		}
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, false
		}
		return v, true
	}
}

func (bs *BadgerStore) View(ctx context.Context, fn func(Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := bs.db.View(func(bt *badger.Txn) error {
		return fn(newTxn(badgerLookup(bt)))
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Update runs fn inside a Badger read-write transaction. Buffered writes are
// applied only when fn succeeds; Badger commits them in one batch.
func (bs *BadgerStore) Update(ctx context.Context, fn func(Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := bs.db.Update(func(bt *badger.Txn) error {
		t := newTxn(badgerLookup(bt))
		if err := fn(t); err != nil {
			return err
		}
		for k, v := range t.writes {
			key := []byte(keyPrefix + k)
			if v == nil {
				if err := bt.Delete(key); err != nil {
					return fmt.Errorf("delete %s: %w", k, err)
				}
				continue
			}
			if err := bt.Set(key, v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}
