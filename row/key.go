package row

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// ErrInvalidKey is returned when a Key cannot be decoded into a Vector.
var ErrInvalidKey = errors.New("row: invalid key encoding")

// Key is the canonical byte-exact encoding of a Vector.
// It is comparable and can be used directly as a map key.
type Key string

// KeyOf returns the canonical key of v.
func KeyOf(v Vector) Key {
	return Key(AppendKey(make([]byte, 0, len(v)*2), v))
}

// AppendKey appends the canonical encoding of v to dst.
func AppendKey(dst []byte, v Vector) []byte {
	for _, x := range v {
		dst = binary.AppendVarint(dst, x)
	}
	return dst
}

// AppendSumKey appends the key of a ⊕ b to dst without allocating the sum.
// It panics if the lengths differ.
func AppendSumKey(dst []byte, a, b Vector) []byte {
	mustSameLen(a, b)
	for i := range a {
		dst = binary.AppendVarint(dst, a[i]+b[i])
	}
	return dst
}

// AppendDiffKey appends the key of target ⊖ c to dst without allocating the difference.
// It panics if the lengths differ.
func AppendDiffKey(dst []byte, target, c Vector) []byte {
	mustSameLen(target, c)
	for i := range target {
		dst = binary.AppendVarint(dst, target[i]-c[i])
	}
	return dst
}

// Vector decodes k back into the vector it was built from.
func (k Key) Vector() (Vector, error) {
	b := []byte(k)
	v := make(Vector, 0, len(b))
	for len(b) > 0 {
		x, n := binary.Varint(b)
		if n <= 0 {
			return nil, ErrInvalidKey
		}
		v = append(v, x)
		b = b[n:]
	}
	return v, nil
}

// Hash returns a 64-bit xxhash of the key bytes.
// Used for shard routing; equality is always decided on the full key.
func (k Key) Hash() uint64 {
	return xxhash.Sum64String(string(k))
}
