// Package sqlite stores nested-interval trees in a single SQLite table.
//
// The table carries the parent pointer and the left bound of every node,
// plus the right bound and float approximations when the matching columns
// are enabled.  Descendant queries prefilter rows in SQL and re-check every
// candidate exactly; a move rewrites the whole subtree with one UPDATE.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	driver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/suhasHere/nitree"
)

// Config holds configuration for a SQLite-backed store.
type Config struct {
	// Path is the database file.  Ignored when InMemory is true.
	Path string

	InMemory bool

	// Columns selects the optional rgtp/rgtq and lft/rgt columns.  It must
	// match the columns of an existing table.
	Columns nitree.Columns

	// BusyTimeout is how long a statement waits on a locked database before
	// failing with ErrConflict.
	BusyTimeout time.Duration

	Logger zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Columns:     nitree.AllColumns,
		BusyTimeout: 5 * time.Second,
		Logger:      zerolog.Nop(),
	}
}

func InMemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.InMemory = true
	return cfg
}

// Store implements nitree.Store on a SQLite database.
type Store struct {
	db   *sql.DB
	cols nitree.Columns
	log  zerolog.Logger

	// Column list shared by every SELECT, in scanNode order.
	selectList string
}

var _ nitree.Store = (*Store)(nil)

// Open opens (and if needed creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	dsn := cfg.Path
	if cfg.InMemory {
		dsn = ":memory:"
	} else if dsn == "" {
		return nil, errors.New("path is required for persistent database")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	// One connection: writes are serialized anyway, and an in-memory
	// database only lives as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	if !cfg.InMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{
		db:         db,
		cols:       cfg.Columns,
		log:        cfg.Logger.With().Str("component", "sqlite").Logger(),
		selectList: strings.Join(columnNames(cfg.Columns), ", "),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func OpenInMemory(cols nitree.Columns) (*Store, error) {
	cfg := InMemoryConfig()
	cfg.Columns = cols
	return Open(cfg)
}

func columnNames(cols nitree.Columns) []string {
	names := []string{"id", "parent_id", "scope", "lftp", "lftq"}
	if cols.Right {
		names = append(names, "rgtp", "rgtq")
	}
	if cols.Floats {
		names = append(names, "lft", "rgt")
	}
	return names
}

func schema(cols nitree.Columns) []string {
	var table strings.Builder
	table.WriteString(`CREATE TABLE IF NOT EXISTS nodes (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id INTEGER REFERENCES nodes(id) ON DELETE RESTRICT,
	scope     TEXT    NOT NULL DEFAULT '',
	lftp      INTEGER NOT NULL,
	lftq      INTEGER NOT NULL`)
	if cols.Right {
		table.WriteString(`,
	rgtp      INTEGER NOT NULL DEFAULT 0,
	rgtq      INTEGER NOT NULL DEFAULT 0`)
	}
	if cols.Floats {
		table.WriteString(`,
	lft       REAL    NOT NULL DEFAULT 0,
	rgt       REAL    NOT NULL DEFAULT 0`)
	}
	table.WriteString("\n)")

	stmts := []string{
		table.String(),
		"CREATE INDEX IF NOT EXISTS nodes_children ON nodes(scope, parent_id, lftq)",
		// Cleared rows (lftq = 0) are exempt while a rebuild is running.
		"CREATE UNIQUE INDEX IF NOT EXISTS nodes_bounds ON nodes(scope, lftq, lftp) WHERE lftq > 0",
	}
	if cols.Floats {
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS nodes_lft ON nodes(scope, lft)")
	}
	return stmts
}

func (s *Store) migrate() error {
	for _, stmt := range schema(s.cols) {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Reject a table created with a different column set.
	rows, err := s.db.Query("SELECT " + s.selectList + " FROM nodes LIMIT 0")
	if err != nil {
		return fmt.Errorf("nodes table does not match columns %+v: %w", s.cols, err)
	}
	return rows.Close()
}

func (s *Store) Columns() nitree.Columns {
	return s.cols
}

// DB exposes the underlying handle, for inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) View(ctx context.Context, fn func(nitree.Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	return fn(&txn{store: s, ctx: ctx, tx: tx})
}

func (s *Store) Update(ctx context.Context, fn func(nitree.Txn) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	if err := fn(&txn{store: s, ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func resultCode(err error) (int, bool) {
	var serr *driver.Error
	if !errors.As(err, &serr) {
		return 0, false
	}
	return serr.Code(), true
}

// mapError translates SQLite result codes into the nitree error taxonomy.
// A foreign key failure means a referenced parent is missing; Delete
// reports its own foreign key failures as ErrHasChildren.
func mapError(err error) error {
	code, ok := resultCode(err)
	if !ok {
		return err
	}

	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("%w: %v", nitree.ErrNotFound, err)
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return fmt.Errorf("%w: %v", nitree.ErrInvariant, err)
	}
	// Primary result code, without the extended bits.
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", nitree.ErrConflict, err)
	}
	return err
}
