package dataset

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hupe1980/trisum/row"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `1 1
2 2

-3  40
`

func TestRead(t *testing.T) {
	rows, err := Read(strings.NewReader(sample), Options{Columns: 2})
	require.NoError(t, err)
	assert.Equal(t, []row.Vector{{1, 1}, {2, 2}, {-3, 40}}, rows)
}

func TestRead_Comment(t *testing.T) {
	const in = "1 1\n  # header\n2 2\n"

	_, err := Read(strings.NewReader(in), Options{Columns: 2})
	require.ErrorIs(t, err, ErrInvalidValue, "comments are data unless enabled")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)

	rows, err := Read(strings.NewReader(in), Options{Columns: 2, Comment: "#"})
	require.NoError(t, err)
	assert.Equal(t, []row.Vector{{1, 1}, {2, 2}}, rows)
}

func TestRead_Empty(t *testing.T) {
	rows, err := Read(strings.NewReader("\n\n"), Options{Columns: 3})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRead_InvalidColumns(t *testing.T) {
	_, err := Read(strings.NewReader("1"), Options{})
	assert.ErrorIs(t, err, ErrInvalidColumns)
}

func TestRead_TooFewColumns(t *testing.T) {
	_, err := Read(strings.NewReader("1 2 3\n4 5\n"), Options{Columns: 3})
	require.ErrorIs(t, err, ErrColumnCount)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Zero(t, pe.Field)
	assert.Contains(t, pe.Error(), "line 2")
}

func TestRead_ExtraColumns(t *testing.T) {
	rows, err := Read(strings.NewReader("1 2 3\n"), Options{Columns: 2})
	require.NoError(t, err)
	assert.Equal(t, []row.Vector{{1, 2}}, rows)

	_, err = Read(strings.NewReader("1 2 3\n"), Options{Columns: 2, ExtraColumns: Reject})
	assert.ErrorIs(t, err, ErrColumnCount)
}

func TestRead_InvalidValue(t *testing.T) {
	_, err := Read(strings.NewReader("1 x\n"), Options{Columns: 2})
	require.ErrorIs(t, err, ErrInvalidValue)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
	assert.Equal(t, 2, pe.Field)
	assert.Equal(t, `line 1 field 2: dataset: invalid integer value: "x"`, pe.Error())
}

func TestRead_Overflow(t *testing.T) {
	_, err := Read(strings.NewReader("99999999999999999999\n"), Options{Columns: 1})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestParseExtraColumns(t *testing.T) {
	p, err := ParseExtraColumns("")
	require.NoError(t, err)
	assert.Equal(t, Truncate, p)

	p, err = ParseExtraColumns("Reject")
	require.NoError(t, err)
	assert.Equal(t, Reject, p)
	assert.Equal(t, "reject", p.String())

	_, err = ParseExtraColumns("pad")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "A.txt")
	require.NoError(t, os.WriteFile(plain, []byte(sample), 0o600))

	var zbuf bytes.Buffer
	zw, err := zstd.NewWriter(&zbuf)
	require.NoError(t, err)
	_, err = zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	zst := filepath.Join(dir, "B.txt.zst")
	require.NoError(t, os.WriteFile(zst, zbuf.Bytes(), 0o600))

	var lbuf bytes.Buffer
	lw := lz4.NewWriter(&lbuf)
	_, err = lw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, lw.Close())
	lz := filepath.Join(dir, "C.txt.lz4")
	require.NoError(t, os.WriteFile(lz, lbuf.Bytes(), 0o600))

	var gbuf bytes.Buffer
	gw := gzip.NewWriter(&gbuf)
	_, err = gw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	gz := filepath.Join(dir, "D.txt.gz")
	require.NoError(t, os.WriteFile(gz, gbuf.Bytes(), 0o600))

	want := []row.Vector{{1, 1}, {2, 2}, {-3, 40}}
	for _, p := range []string{plain, zst, lz, gz} {
		rows, err := Load(p, Options{Columns: 2})
		require.NoError(t, err, p)
		assert.Equal(t, want, rows, p)
	}
}

func TestLoad_ParseErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "A.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o600))

	_, err := Load(path, Options{Columns: 2})
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, path, pe.Path)
	assert.True(t, strings.HasPrefix(pe.Error(), path+":1"))
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), Options{Columns: 2})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
