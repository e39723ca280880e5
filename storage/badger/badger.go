// Package badger stores nested-interval trees in an embedded BadgerDB.
//
// Node records are kept under their ID and indexed three ways: by parent
// (ordered by left denominator, for allocation), by exact bounds (for
// ancestor lookups) and optionally by the float approximation of the left
// bound (for descendant range scans).  All indexes live in the same
// transaction as the records they point to.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/suhasHere/nitree"
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.  Ignored when InMemory is
	// true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Columns selects the derived fields kept in each record.  With
	// Columns.Floats the float index is maintained as well.
	Columns nitree.Columns

	// Logger receives BadgerDB's own log output and GC events.
	Logger zerolog.Logger

	// GCInterval is how often to run value log garbage collection.  Zero
	// disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns defaults for production use.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		Columns:        nitree.AllColumns,
		Logger:         zerolog.Nop(),
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk I/O and no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		Columns:  nitree.AllColumns,
		Logger:   zerolog.Nop(),
	}
}

// Logger adapts zerolog to BadgerDB's Logger interface.
type Logger struct {
	log zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		log: logger.With().Str("component", "badger").Logger(),
	}
}

func (l *Logger) Errorf(msg string, args ...interface{}) {
	l.log.Error().Msgf(msg, args...)
}

func (l *Logger) Warningf(msg string, args ...interface{}) {
	l.log.Warn().Msgf(msg, args...)
}

func (l *Logger) Infof(msg string, args ...interface{}) {
	l.log.Info().Msgf(msg, args...)
}

func (l *Logger) Debugf(msg string, args ...interface{}) {
	l.log.Debug().Msgf(msg, args...)
}

// Open opens the database described by cfg and returns a Store over it.
// The caller must Close the store.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(NewLogger(cfg.Logger))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	store, err := newStore(db, cfg.Columns)
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		store.gcRunner = runner
		runner.Start()
	}
	return store, nil
}

// OpenInMemory opens an in-memory store for tests.
func OpenInMemory(cols nitree.Columns) (*Store, error) {
	cfg := InMemoryConfig()
	cfg.Columns = cols
	return Open(cfg)
}

// GCRunner runs periodic value log garbage collection.
type GCRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	log      zerolog.Logger
}

func NewGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger zerolog.Logger) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if ratio < 0 || ratio > 1 {
		return nil, errors.New("ratio must be between 0 and 1")
	}

	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      logger.With().Str("component", "badger_gc").Logger(),
	}, nil
}

func (r *GCRunner) Start() {
	go r.run()
}

// Stop halts garbage collection and waits for a running pass to finish.
func (r *GCRunner) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *GCRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *GCRunner) runGC() {
	// RunValueLogGC returns ErrNoRewrite when there was nothing to collect.
	err := r.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		r.log.Debug().Msg("value log GC completed")
	case !errors.Is(err, badger.ErrNoRewrite):
		r.log.Warn().Err(err).Msg("value log GC failed")
	}
}

// withTxn runs fn in a read-write transaction and commits it if fn
// succeeds.
func withTxn(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}

	err := txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", nitree.ErrConflict, err)
	}
	return err
}

// withReadTxn runs fn in a read-only transaction.
func withReadTxn(ctx context.Context, db *badger.DB, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}
