// Package dataset loads the A, B and C row files.
//
// A dataset file holds one row per line, each row a whitespace-delimited list
// of signed integers. Blank lines and lines starting with '#' are skipped.
// Files ending in .zst, .lz4 or .gz are decompressed transparently.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hupe1980/trisum/row"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// ErrColumnCount is returned when a line has fewer values than the configured column count,
	// or more when extra columns are rejected.
	ErrColumnCount = errors.New("dataset: wrong number of columns")

	// ErrInvalidValue is returned when a field is not a signed 64-bit integer.
	ErrInvalidValue = errors.New("dataset: invalid integer value")

	// ErrInvalidColumns is returned when Options.Columns is not positive.
	ErrInvalidColumns = errors.New("dataset: columns must be positive")
)

// ExtraColumns selects what happens to values beyond the configured column count.
type ExtraColumns int

const (
	// Truncate drops extra values. This is the default.
	Truncate ExtraColumns = iota
	// Reject fails the load with ErrColumnCount.
	Reject
)

// String returns the policy name.
func (e ExtraColumns) String() string {
	switch e {
	case Truncate:
		return "truncate"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("ExtraColumns(%d)", int(e))
	}
}

// ParseExtraColumns parses "truncate" or "reject".
func ParseExtraColumns(s string) (ExtraColumns, error) {
	switch strings.ToLower(s) {
	case "", "truncate":
		return Truncate, nil
	case "reject":
		return Reject, nil
	default:
		return Truncate, fmt.Errorf("dataset: unknown extra-columns policy %q", s)
	}
}

// Options configures parsing.
type Options struct {
	// Columns is the number of values per row. Required.
	Columns int

	// ExtraColumns controls lines with more than Columns values.
	ExtraColumns ExtraColumns

	// Comment, when set, marks lines to skip: any line whose first
	// non-blank text starts with it. Empty means every non-blank line is data.
	Comment string
}

// ParseError reports the location of a malformed line.
type ParseError struct {
	Path  string // empty when reading from a stream
	Line  int    // 1-based
	Field int    // 1-based, 0 when the error concerns the whole line
	Err   error
}

func (e *ParseError) Error() string {
	loc := fmt.Sprintf("line %d", e.Line)
	if e.Path != "" {
		loc = e.Path + ":" + strconv.Itoa(e.Line)
	}
	if e.Field > 0 {
		loc += fmt.Sprintf(" field %d", e.Field)
	}
	return fmt.Sprintf("%s: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads the dataset at path.
func Load(path string, opts Options) ([]row.Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, closeFn, err := decompress(path, f)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer closeFn()

	rows, err := Read(r, opts)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return rows, nil
}

func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case ".lz4":
		return lz4.NewReader(r), func() {}, nil
	case ".gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gr, func() { _ = gr.Close() }, nil
	default:
		return r, func() {}, nil
	}
}

// Read parses rows from r.
func Read(r io.Reader, opts Options) ([]row.Vector, error) {
	if opts.Columns <= 0 {
		return nil, ErrInvalidColumns
	}

	var out []row.Vector
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || (opts.Comment != "" && strings.HasPrefix(line, opts.Comment)) {
			continue
		}

		v, err := parseLine(line, opts)
		if err != nil {
			err.Line = lineNo
			return nil, err
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseLine(line string, opts Options) (row.Vector, *ParseError) {
	fields := strings.Fields(line)
	if len(fields) < opts.Columns {
		return nil, &ParseError{Err: fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(fields), opts.Columns)}
	}
	if len(fields) > opts.Columns && opts.ExtraColumns == Reject {
		return nil, &ParseError{Err: fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(fields), opts.Columns)}
	}

	v := make(row.Vector, opts.Columns)
	for i := range v {
		n, err := strconv.ParseInt(fields[i], 10, 64)
		if err != nil {
			return nil, &ParseError{Field: i + 1, Err: fmt.Errorf("%w: %q", ErrInvalidValue, fields[i])}
		}
		v[i] = n
	}
	return v, nil
}
