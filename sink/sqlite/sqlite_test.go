package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/trisum/match"
	"github.com/hupe1980/trisum/row"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSink(t *testing.T, optFns ...func(*Options)) *Sink {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "matches.db"), optFns...)
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("go-sqlite3 requires cgo")
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSink_Write(t *testing.T) {
	ctx := context.Background()
	s := openTestSink(t, func(o *Options) { o.Run = "run-1" })

	triples := []match.Triple{
		{AIndex: 0, BIndex: 0, CIndex: 1, A: row.New(1, 1), B: row.New(1, 1), C: row.New(3, 3)},
		{AIndex: 0, BIndex: 1, CIndex: 0, A: row.New(1, 1), B: row.New(2, 2), C: row.New(2, 2)},
	}
	require.NoError(t, s.Write(ctx, triples))
	require.NoError(t, s.Write(ctx, nil))
	require.NoError(t, s.Write(ctx, triples[:1]))

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM matches WHERE run = 'run-1'").Scan(&n))
	assert.Equal(t, 3, n)

	var a, c string
	var cIdx int
	require.NoError(t, s.DB().QueryRowContext(ctx,
		"SELECT a, c, c_index FROM matches WHERE b_index = 1").Scan(&a, &c, &cIdx))
	assert.Equal(t, "(1, 1)", a)
	assert.Equal(t, "(2, 2)", c)
	assert.Equal(t, 0, cIdx)
}

func TestSink_CustomTable(t *testing.T) {
	ctx := context.Background()
	s := openTestSink(t, func(o *Options) { o.Table = "triples_2026" })
	require.NoError(t, s.Write(ctx, []match.Triple{{A: row.New(1), B: row.New(2), C: row.New(3)}}))

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM triples_2026").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSink_InvalidTable(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"), func(o *Options) {
		o.Table = "matches; DROP TABLE x"
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}
