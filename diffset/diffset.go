// Package diffset implements the difference set: the keys of Λ ⊖ c for every
// row c of dataset C.
//
// A key present in the set means at least one C row would be completed by an
// (a, b) pair whose sum has that key. Besides membership, each key keeps a
// Roaring bitmap of the C row indices that produced it, so a probe over A × B
// can emit the full (a, b, c) triple without a second pass over C. Duplicate
// C rows map to the same key and both of their indices are kept.
package diffset

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/trisum/internal/conv"
	"github.com/hupe1980/trisum/row"
)

// ErrTooManyRows is returned when a C row index does not fit in uint32.
var ErrTooManyRows = errors.New("diffset: row index exceeds uint32 range")

// Set is a deduplicated set of difference keys with their origin rows.
type Set struct {
	origins map[row.Key]*roaring.Bitmap
}

// New creates an empty Set.
func New() *Set {
	return &Set{origins: make(map[row.Key]*roaring.Bitmap)}
}

// Insert records that C row origin produces key.
func (s *Set) Insert(key row.Key, origin uint32) {
	bm, ok := s.origins[key]
	if !ok {
		bm = roaring.New()
		s.origins[key] = bm
	}
	bm.Add(origin)
}

// InsertBitmap records every origin in bm under key. bm is copied.
func (s *Set) InsertBitmap(key row.Key, bm *roaring.Bitmap) {
	if cur, ok := s.origins[key]; ok {
		cur.Or(bm)
		return
	}
	s.origins[key] = bm.Clone()
}

// Contains reports whether key is in the set.
func (s *Set) Contains(key row.Key) bool {
	_, ok := s.origins[key]
	return ok
}

// Origins returns the C row indices that produced key, in ascending order.
func (s *Set) Origins(key row.Key) []uint32 {
	bm, ok := s.origins[key]
	if !ok {
		return nil
	}
	return bm.ToArray()
}

// Bitmap returns the origin bitmap for key, or nil. It must not be modified.
func (s *Set) Bitmap(key row.Key) *roaring.Bitmap {
	return s.origins[key]
}

// Len returns the number of distinct keys.
func (s *Set) Len() int { return len(s.origins) }

// Rows returns the total number of origin rows across all keys.
func (s *Set) Rows() uint64 {
	var n uint64
	for _, bm := range s.origins {
		n += bm.GetCardinality()
	}
	return n
}

// All iterates over every key and its origin bitmap. Order is unspecified.
// Bitmaps must not be modified.
func (s *Set) All() iter.Seq2[row.Key, *roaring.Bitmap] {
	return func(yield func(row.Key, *roaring.Bitmap) bool) {
		for k, bm := range s.origins {
			if !yield(k, bm) {
				return
			}
		}
	}
}

// Build computes the difference set for cChunk against target.
//
// cOffset is the position of cChunk[0] within the full C dataset. The
// context is checked once per row.
func Build(ctx context.Context, cChunk []row.Vector, cOffset int, target row.Vector) (*Set, error) {
	s := New()
	if len(cChunk) == 0 {
		return s, nil
	}
	if _, err := conv.LastIndexUint32(cOffset, len(cChunk)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTooManyRows, err)
	}

	buf := make([]byte, 0, 2*len(target)+8)
	for i, c := range cChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf = row.AppendDiffKey(buf[:0], target, c)
		s.Insert(row.Key(buf), uint32(cOffset+i))
	}
	return s, nil
}

// Merge returns the union of the given sets. Inputs are not modified and may be nil.
func Merge(sets ...*Set) *Set {
	out := New()
	for _, in := range sets {
		if in == nil {
			continue
		}
		for k, bm := range in.origins {
			out.InsertBitmap(k, bm)
		}
	}
	return out
}
