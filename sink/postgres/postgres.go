// Package postgres streams match triples into a Postgres table with COPY.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/trisum/match"
	"github.com/hupe1980/trisum/sink"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is the subset of pgx used by the sink.
// *pgxpool.Pool and *pgx.Conn satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

var (
	_ Conn = (*pgxpool.Pool)(nil)
	_ Conn = (*pgx.Conn)(nil)
)

// Columns lists the COPY target columns in order.
var Columns = []string{"run", "a_index", "b_index", "c_index", "a", "b", "c"}

// Options configures the sink.
type Options struct {
	// Table is the target table, optionally schema-qualified ("public.matches").
	Table string
	// Run labels every row.
	Run string
	// CreateTable issues CREATE TABLE IF NOT EXISTS on construction.
	CreateTable bool
}

// DefaultOptions returns the default sink options.
func DefaultOptions() Options {
	return Options{Table: "matches", CreateTable: true}
}

// Sink copies triples into Postgres.
type Sink struct {
	conn    Conn
	table   pgx.Identifier
	run     string
	closeFn func()
}

var _ sink.Sink = (*Sink)(nil)

// Connect opens a pool for dsn and returns a sink that owns it.
func Connect(ctx context.Context, dsn string, optFns ...func(o *Options)) (*Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	s, err := New(ctx, pool, optFns...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.closeFn = pool.Close
	return s, nil
}

// New returns a sink writing through conn. The caller keeps ownership of conn.
func New(ctx context.Context, conn Conn, optFns ...func(o *Options)) (*Sink, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	table := splitFQN(opts.Table)
	if len(table) == 0 {
		return nil, fmt.Errorf("postgres: empty table name %q", opts.Table)
	}

	if opts.CreateTable {
		if _, err := conn.Exec(ctx, createTableSQL(table)); err != nil {
			return nil, fmt.Errorf("postgres: create table: %w", err)
		}
	}

	return &Sink{conn: conn, table: table, run: opts.Run}, nil
}

// Table returns the target table identifier.
func (s *Sink) Table() pgx.Identifier {
	return s.table
}

func (s *Sink) Write(ctx context.Context, triples []match.Triple) error {
	if len(triples) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(triples))
	for _, t := range triples {
		rows = append(rows, []any{
			s.run,
			int64(t.AIndex), int64(t.BIndex), int64(t.CIndex),
			[]int64(t.A), []int64(t.B), []int64(t.C),
		})
	}

	n, err := s.conn.CopyFrom(ctx, s.table, Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("postgres: copy: %w", err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("postgres: copied %d of %d rows", n, len(rows))
	}
	return nil
}

func (s *Sink) Close() error {
	if s.closeFn != nil {
		s.closeFn()
		s.closeFn = nil
	}
	return nil
}

func createTableSQL(table pgx.Identifier) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run     text     NOT NULL,
	a_index bigint   NOT NULL,
	b_index bigint   NOT NULL,
	c_index bigint   NOT NULL,
	a       bigint[] NOT NULL,
	b       bigint[] NOT NULL,
	c       bigint[] NOT NULL
)`, table.Sanitize())
}

// splitFQN splits "schema.table" into an identifier, dropping empty parts.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
