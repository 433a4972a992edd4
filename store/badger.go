package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// runKeyPrefix namespaces run snapshots inside the database.
const runKeyPrefix = "run/"

var (
	_ core.Store     = (*BadgerStore)(nil)
	_ core.RunLoader = (*BadgerStore)(nil)
)

// BadgerOptions configure a BadgerStore.
type BadgerOptions struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string
	// InMemory keeps the database in memory only.
	InMemory bool
	// SyncWrites fsyncs every write. Defaults to true.
	SyncWrites bool
	// Logger receives badger's internal log lines. Nil silences them.
	Logger logging.Logger
}

// BadgerStore persists runs as JSON values in an embedded badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database described by the options.
func NewBadgerStore(optFns ...func(o *BadgerOptions)) (*BadgerStore, error) {
	opts := BadgerOptions{SyncWrites: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case opts.Path == "":
		return nil, errors.New("badger store: path is required for a persistent database")
	default:
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites && !opts.InMemory).WithNumVersionsToKeep(1)
	if opts.Logger != nil {
		bopts = bopts.WithLogger(&badgerLogger{logger: opts.Logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreFromDB wraps an already opened database. Closing the store
// closes db.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore { return &BadgerStore{db: db} }

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func runKey(id string) []byte { return []byte(runKeyPrefix + id) }

// Save writes the snapshot under run/<id>, overwriting any previous value.
func (s *BadgerStore) Save(_ context.Context, state *core.RunState) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidID)
	}
	if err := validateID(state.ID); err != nil {
		return err
	}
	data, err := encode(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(state.ID), data)
	})
}

// Load reads one run back or returns ErrNotFound.
func (s *BadgerStore) Load(_ context.Context, id string) (*core.RunState, error) {
	var state *core.RunState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state, err = decode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// List returns every stored run, oldest first.
func (s *BadgerStore) List(ctx context.Context) ([]*core.RunState, error) {
	var runs []*core.RunState
	prefix := []byte(runKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(val []byte) error {
				state, err := decode(val)
				if err != nil {
					return fmt.Errorf("%s: %w", it.Item().Key(), err)
				}
				runs = append(runs, state)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

// Delete removes a run. Deleting an unknown id returns ErrNotFound.
func (s *BadgerStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		return txn.Delete(runKey(id))
	})
}

// badgerLogger forwards badger's printf-style logging to a logging.Logger.
type badgerLogger struct {
	logger logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
