// Package sink delivers match triples to their destinations.
//
// A Sink receives triples in batches, one batch per probe chunk in chunk
// order. TextSink renders the line format "(a1, a2) (b1, b2) (c1, c2)" to an
// output file and mirrors every line to additional writers such as stdout.
// Packages sink/sqlite and sink/postgres store triples in SQL tables.
package sink

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/trisum/match"
)

// Sink consumes match triples.
type Sink interface {
	// Write delivers one batch of triples.
	Write(ctx context.Context, triples []match.Triple) error
	// Close flushes buffered output and releases resources.
	Close() error
}

// TextSink writes one line per triple.
type TextSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	count  int
}

var _ Sink = (*TextSink)(nil)

// NewTextSink writes lines to w and to every mirror.
func NewTextSink(w io.Writer, mirrors ...io.Writer) *TextSink {
	if len(mirrors) > 0 {
		w = io.MultiWriter(append([]io.Writer{w}, mirrors...)...)
	}
	return &TextSink{w: bufio.NewWriter(w)}
}

// CreateTextFile creates (or truncates) the file at path and returns a
// TextSink writing to it and to every mirror.
func CreateTextFile(path string, mirrors ...io.Writer) (*TextSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewTextSink(f, mirrors...)
	s.closer = f
	return s, nil
}

func (s *TextSink) Write(ctx context.Context, triples []match.Triple) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.w.WriteString(t.String()); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
		s.count++
	}
	return s.w.Flush()
}

// Count returns the number of lines written.
func (s *TextSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *TextSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
		s.closer = nil
	}
	return err
}

// Multi fans every batch out to all sinks in order. Nil sinks are skipped.
func Multi(sinks ...Sink) Sink {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Write(ctx context.Context, triples []match.Triple) error {
	for _, s := range m {
		if err := s.Write(ctx, triples); err != nil {
			return err
		}
	}
	return nil
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every triple.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write(context.Context, []match.Triple) error { return nil }
func (discard) Close() error                                { return nil }
