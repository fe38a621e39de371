// Package match implements the probe phase of the matching engine.
//
// Two probes are provided, one per build structure:
//
//   - ProbeIndex walks a chunk of C against a merged pair index: for every c
//     the key of Λ ⊖ c is looked up and each stored (a, b) pair yields a triple.
//   - ProbeDiffs walks a chunk of A against all of B: for every (a, b) the key
//     of a ⊕ b is looked up in a merged difference set and each origin C row
//     yields a triple.
//
// Both probes are pure with respect to their inputs. For the same structure
// they produce the same multiset of triples regardless of how the probed
// dataset is chunked. The structures passed in are read-only.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/trisum/diffset"
	"github.com/hupe1980/trisum/pairindex"
	"github.com/hupe1980/trisum/row"
)

// ErrOriginOutOfRange is returned when a difference set references a C row
// that does not exist in the dataset handed to ProbeDiffs.
var ErrOriginOutOfRange = errors.New("match: origin row out of range")

// Triple is a matching (a, b, c) combination with a ⊕ b ⊕ c = Λ.
type Triple struct {
	AIndex int
	BIndex int
	CIndex int
	A      row.Vector
	B      row.Vector
	C      row.Vector
}

// String renders the triple as "(a...) (b...) (c...)".
func (t Triple) String() string {
	return row.Format(t.A, t.B, t.C)
}

// Indices returns the (a, b, c) row indices.
func (t Triple) Indices() [3]int {
	return [3]int{t.AIndex, t.BIndex, t.CIndex}
}

// ProbeIndex emits a triple for every pair stored under the key of
// target ⊖ c, for each c in cChunk. cOffset is the position of cChunk[0]
// within the full C dataset. Rows without a bucket contribute nothing.
func ProbeIndex(ctx context.Context, ix *pairindex.Index, cChunk []row.Vector, cOffset int, target row.Vector) ([]Triple, error) {
	var out []Triple
	buf := make([]byte, 0, 2*len(target)+8)

	for i, c := range cChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf = row.AppendDiffKey(buf[:0], target, c)
		for _, p := range ix.Lookup(row.Key(buf)) {
			out = append(out, Triple{
				AIndex: p.AIndex,
				BIndex: p.BIndex,
				CIndex: cOffset + i,
				A:      p.A,
				B:      p.B,
				C:      c,
			})
		}
	}
	return out, nil
}

// ProbeDiffs emits a triple for every origin C row stored under the key of
// a ⊕ b, for each a in aChunk and b in b. aOffset is the position of
// aChunk[0] within the full A dataset; c is the full C dataset the set was
// built from.
func ProbeDiffs(ctx context.Context, diffs *diffset.Set, aChunk []row.Vector, aOffset int, b, c []row.Vector) ([]Triple, error) {
	var out []Triple
	if len(aChunk) == 0 || len(b) == 0 {
		return out, nil
	}
	buf := make([]byte, 0, 2*len(aChunk[0])+8)

	for i, a := range aChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j, bv := range b {
			buf = row.AppendSumKey(buf[:0], a, bv)
			bm := diffs.Bitmap(row.Key(buf))
			if bm == nil {
				continue
			}
			it := bm.Iterator()
			for it.HasNext() {
				k := int(it.Next())
				if k >= len(c) {
					return nil, fmt.Errorf("%w: %d >= %d", ErrOriginOutOfRange, k, len(c))
				}
				out = append(out, Triple{
					AIndex: aOffset + i,
					BIndex: j,
					CIndex: k,
					A:      a,
					B:      bv,
					C:      c[k],
				})
			}
		}
	}
	return out, nil
}

// Sort orders triples by (C, A, B) index, the order in which the
// index-then-probe strategy discovers them on a single worker.
func Sort(ts []Triple) {
	sort.Slice(ts, func(i, j int) bool {
		x, y := ts[i], ts[j]
		if x.CIndex != y.CIndex {
			return x.CIndex < y.CIndex
		}
		if x.AIndex != y.AIndex {
			return x.AIndex < y.AIndex
		}
		return x.BIndex < y.BIndex
	})
}

// Verify reports whether t satisfies a ⊕ b ⊕ c = target.
func Verify(t Triple, target row.Vector) bool {
	if len(t.A) != len(target) || len(t.B) != len(target) || len(t.C) != len(target) {
		return false
	}
	for i := range target {
		if t.A[i]+t.B[i]+t.C[i] != target[i] {
			return false
		}
	}
	return true
}
