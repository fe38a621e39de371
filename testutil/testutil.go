package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/hupe1980/trisum/row"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Int64Range returns a pseudo-random number in [lo, hi].
func (r *RNG) Int64Range(lo, hi int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rand.Int63n(hi-lo+1)
}

// Rows generates num rows of the given width with components in [lo, hi].
// Uses a single backing array for efficiency.
func (r *RNG) Rows(num, columns int, lo, hi int64) []row.Vector {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]int64, num*columns)
	rows := make([]row.Vector, num)
	span := hi - lo + 1

	for i := range num {
		v := data[i*columns : (i+1)*columns : (i+1)*columns]
		for j := range v {
			v[j] = lo + r.rand.Int63n(span)
		}
		rows[i] = row.Vector(v)
	}

	return rows
}

// PlantedRows returns a, b, c datasets of random rows in [lo, hi] with n
// additional rows appended to each so that a[k] ⊕ b[k] ⊕ c[k] = target for
// every planted k. The planted rows are placed at random positions.
func (r *RNG) PlantedRows(num, planted, columns int, lo, hi int64, target row.Vector) (a, b, c []row.Vector) {
	a = r.Rows(num, columns, lo, hi)
	b = r.Rows(num, columns, lo, hi)
	c = r.Rows(num, columns, lo, hi)

	for range planted {
		x := r.Rows(1, columns, lo, hi)[0]
		y := r.Rows(1, columns, lo, hi)[0]
		z := target.Sub(x).Sub(y)
		a = r.insertAt(a, x)
		b = r.insertAt(b, y)
		c = r.insertAt(c, z)
	}
	return a, b, c
}

func (r *RNG) insertAt(rows []row.Vector, v row.Vector) []row.Vector {
	pos := r.Intn(len(rows) + 1)
	rows = append(rows, nil)
	copy(rows[pos+1:], rows[pos:])
	rows[pos] = v
	return rows
}

// BruteForce returns every (a, b, c) index triple with a ⊕ b ⊕ c = target,
// using the naive triple loop. The result is sorted.
func BruteForce(a, b, c []row.Vector, target row.Vector) [][3]int {
	var out [][3]int
	for i, x := range a {
		for j, y := range b {
			s := x.Add(y)
			for k, z := range c {
				if s.Add(z).Equal(target) {
					out = append(out, [3]int{i, j, k})
				}
			}
		}
	}
	SortTriples(out)
	return out
}

// SortTriples sorts index triples lexicographically in place.
func SortTriples(ts [][3]int) {
	sort.Slice(ts, func(i, j int) bool {
		for k := range 3 {
			if ts[i][k] != ts[j][k] {
				return ts[i][k] < ts[j][k]
			}
		}
		return false
	})
}
