// Package row provides the fixed-width integer vectors that make up the A, B
// and C datasets, together with their canonical hash keys.
//
// A Vector is immutable by contract: every constructor copies its input and
// no method mutates the receiver. Vectors are shared by reference between
// pair indexes, difference sets and match triples.
//
// # Keys
//
// Key is the canonical, byte-exact representation of a Vector used for map
// lookups. Each component is written as a zig-zag varint, so the encoding is
// lossless: two vectors produce the same Key if and only if all components are
// equal. The encoding depends only on the component values, never on process,
// goroutine or chunk, which makes keys produced by different workers directly
// mergeable.
//
//	k := row.KeyOf(row.New(1, -2, 3))
//	v, _ := k.Vector() // (1, -2, 3)
package row

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrLengthMismatch is returned when two vectors of different lengths are combined.
var ErrLengthMismatch = errors.New("row: vector length mismatch")

// Vector is an immutable, fixed-length sequence of signed integers.
type Vector []int64

// New returns a Vector holding a copy of vals.
func New(vals ...int64) Vector {
	v := make(Vector, len(vals))
	copy(v, vals)
	return v
}

// Fill returns a Vector of length n with every component set to val.
// It is used to expand the scalar target λ into the target vector Λ.
func Fill(n int, val int64) Vector {
	if n < 0 {
		n = 0
	}
	v := make(Vector, n)
	for i := range v {
		v[i] = val
	}
	return v
}

// Len returns the number of components.
func (v Vector) Len() int { return len(v) }

// Equal reports whether v and o have identical components.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Add returns the elementwise sum v ⊕ o.
// It panics if the lengths differ; callers validate dimensions at load time.
func (v Vector) Add(o Vector) Vector {
	mustSameLen(v, o)
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] + o[i]
	}
	return out
}

// Sub returns the elementwise difference v ⊖ o.
// It panics if the lengths differ; callers validate dimensions at load time.
func (v Vector) Sub(o Vector) Vector {
	mustSameLen(v, o)
	out := make(Vector, len(v))
	for i := range v {
		out[i] = v[i] - o[i]
	}
	return out
}

// Clone returns a deep copy of v.
func (v Vector) Clone() Vector {
	return New(v...)
}

// String renders v as a parenthesized tuple, e.g. "(1, 2, 3)".
// A single component renders with a trailing comma: "(1,)".
func (v Vector) String() string {
	var sb strings.Builder
	v.appendTo(&sb)
	return sb.String()
}

func (v Vector) appendTo(sb *strings.Builder) {
	sb.WriteByte('(')
	for i, x := range v {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.FormatInt(x, 10))
	}
	if len(v) == 1 {
		sb.WriteByte(',')
	}
	sb.WriteByte(')')
}

// Format renders vectors as space separated tuples on a single line.
func Format(vs ...Vector) string {
	var sb strings.Builder
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(' ')
		}
		v.appendTo(&sb)
	}
	return sb.String()
}

// CheckLen returns an error if v does not have exactly n components.
func CheckLen(v Vector, n int) error {
	if len(v) != n {
		return fmt.Errorf("%w: expected %d, got %d", ErrLengthMismatch, n, len(v))
	}
	return nil
}

func mustSameLen(a, b Vector) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("row: vector length mismatch: %d != %d", len(a), len(b)))
	}
}
