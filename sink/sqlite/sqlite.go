// Package sqlite stores match triples in a SQLite database.
//
// Each triple becomes one row of the matches table:
//
//	run TEXT, a_index INTEGER, b_index INTEGER, c_index INTEGER,
//	a TEXT, b TEXT, c TEXT
//
// Vectors are stored in their tuple rendering, e.g. "(1, 2)". Every batch is
// inserted in a single transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/hupe1980/trisum/match"
	"github.com/hupe1980/trisum/sink"
	_ "github.com/mattn/go-sqlite3"
)

// Options configures the sink.
type Options struct {
	// Table receives the triples. Default: "matches".
	Table string
	// Run labels every inserted row so several runs can share a table.
	Run string
}

// DefaultOptions returns the default sink options.
func DefaultOptions() Options {
	return Options{Table: "matches"}
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Sink inserts triples into SQLite.
type Sink struct {
	db     *sql.DB
	insert string
	run    string
}

var _ sink.Sink = (*Sink)(nil)

// Open opens (or creates) the database file at path.
func Open(ctx context.Context, path string, optFns ...func(o *Options)) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database, creating the table if needed. The sink owns db.
func New(ctx context.Context, db *sql.DB, optFns ...func(o *Options)) (*Sink, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if !identRE.MatchString(opts.Table) {
		return nil, fmt.Errorf("sqlite: invalid table name %q", opts.Table)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run     TEXT    NOT NULL,
	a_index INTEGER NOT NULL,
	b_index INTEGER NOT NULL,
	c_index INTEGER NOT NULL,
	a       TEXT    NOT NULL,
	b       TEXT    NOT NULL,
	c       TEXT    NOT NULL
)`, opts.Table)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("sqlite: create table: %w", err)
	}

	return &Sink{
		db:     db,
		insert: fmt.Sprintf("INSERT INTO %s (run, a_index, b_index, c_index, a, b, c) VALUES (?, ?, ?, ?, ?, ?, ?)", opts.Table),
		run:    opts.Run,
	}, nil
}

// DB returns the underlying database.
func (s *Sink) DB() *sql.DB {
	return s.db
}

func (s *Sink) Write(ctx context.Context, triples []match.Triple) error {
	if len(triples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range triples {
		if _, err := stmt.ExecContext(ctx, s.run, t.AIndex, t.BIndex, t.CIndex, t.A.String(), t.B.String(), t.C.String()); err != nil {
			return fmt.Errorf("sqlite: insert: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Sink) Close() error {
	return s.db.Close()
}
