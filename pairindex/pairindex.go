// Package pairindex implements the pair-sum index: a multi-map from the key of
// a ⊕ b to every (a, b) row pair producing that sum.
//
// Buckets preserve collisions. Distinct pairs that legitimately share a sum
// are appended to the same bucket and are never overwritten. Bucket order is
// not meaningful.
//
// An Index is split into a fixed number of shards routed by the xxhash of the
// key. Shards let Merge combine partial indexes in parallel without locks,
// each goroutine owning one output shard.
//
// # Ownership
//
// An Index is owned by the goroutine that builds it until it is handed to
// Merge or to the probe phase. From then on it must be treated as read-only.
// Slices returned by Lookup and All alias internal storage.
package pairindex

import (
	"context"
	"iter"

	"github.com/hupe1980/trisum/row"
	"golang.org/x/sync/errgroup"
)

// NumShards is the number of hash shards per Index. Must be a power of two.
const NumShards = 64

const shardMask = NumShards - 1

// Pair is one (a, b) combination stored in the index.
type Pair struct {
	// AIndex is the position of A within dataset A.
	AIndex int
	// BIndex is the position of B within dataset B.
	BIndex int
	A      row.Vector
	B      row.Vector
}

// Sum returns the derived vector a ⊕ b.
func (p Pair) Sum() row.Vector {
	return p.A.Add(p.B)
}

// Index maps sum keys to the pairs producing them.
type Index struct {
	shards [NumShards]map[row.Key][]Pair
	keys   int
	pairs  int
}

// New creates an empty Index.
func New() *Index {
	ix := &Index{}
	for i := range ix.shards {
		ix.shards[i] = make(map[row.Key][]Pair)
	}
	return ix
}

func shardOf(key row.Key) int {
	return int(key.Hash() & shardMask)
}

// Add appends p to the bucket for key.
func (ix *Index) Add(key row.Key, p Pair) {
	m := ix.shards[shardOf(key)]
	bucket, ok := m[key]
	if !ok {
		ix.keys++
	}
	m[key] = append(bucket, p)
	ix.pairs++
}

// Lookup returns the bucket stored under key, or nil.
// The returned slice must not be modified.
func (ix *Index) Lookup(key row.Key) []Pair {
	return ix.shards[shardOf(key)][key]
}

// Contains reports whether key has a bucket.
func (ix *Index) Contains(key row.Key) bool {
	_, ok := ix.shards[shardOf(key)][key]
	return ok
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int { return ix.keys }

// Pairs returns the total number of stored pairs across all buckets.
func (ix *Index) Pairs() int { return ix.pairs }

// All iterates over every bucket. Iteration order is unspecified.
func (ix *Index) All() iter.Seq2[row.Key, []Pair] {
	return func(yield func(row.Key, []Pair) bool) {
		for _, m := range ix.shards {
			for k, ps := range m {
				if !yield(k, ps) {
					return
				}
			}
		}
	}
}

// Build indexes every combination of the rows in aChunk with every row in b.
//
// aOffset is the position of aChunk[0] within the full A dataset, so that
// pairs built by different workers carry global row indices. An empty aChunk
// or b yields an empty index. The context is checked once per A row.
func Build(ctx context.Context, aChunk []row.Vector, aOffset int, b []row.Vector) (*Index, error) {
	return build(ctx, aChunk, aOffset, b, nil)
}

// BuildFiltered is like Build but only stores pairs whose sum key satisfies
// keep. It is the second pass of the difference-filtered strategy, where keep
// is membership in a difference set.
func BuildFiltered(ctx context.Context, aChunk []row.Vector, aOffset int, b []row.Vector, keep func(row.Key) bool) (*Index, error) {
	return build(ctx, aChunk, aOffset, b, keep)
}

func build(ctx context.Context, aChunk []row.Vector, aOffset int, b []row.Vector, keep func(row.Key) bool) (*Index, error) {
	ix := New()
	if len(aChunk) == 0 || len(b) == 0 {
		return ix, nil
	}

	buf := make([]byte, 0, 2*len(aChunk[0])+8)
	for i, a := range aChunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j, bv := range b {
			buf = row.AppendSumKey(buf[:0], a, bv)
			key := row.Key(buf)
			if keep != nil && !keep(key) {
				continue
			}
			ix.Add(key, Pair{AIndex: aOffset + i, BIndex: j, A: a, B: bv})
		}
	}
	return ix, nil
}

// Merge returns the union of the given indexes. Buckets present in more than
// one input are concatenated in argument order. Inputs are not modified and
// may be nil.
//
// Merge is associative and commutative up to bucket order.
func Merge(ctx context.Context, indices ...*Index) (*Index, error) {
	out := New()

	var (
		keys  [NumShards]int
		pairs [NumShards]int
	)

	g, ctx := errgroup.WithContext(ctx)
	for s := range NumShards {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dst := out.shards[s]
			for _, in := range indices {
				if in == nil {
					continue
				}
				for k, ps := range in.shards[s] {
					dst[k] = append(dst[k], ps...)
					pairs[s] += len(ps)
				}
			}
			keys[s] = len(dst)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for s := range NumShards {
		out.keys += keys[s]
		out.pairs += pairs[s]
	}
	return out, nil
}
