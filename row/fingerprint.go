package row

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Fingerprint returns an xxh3 digest over the target vector and the given row
// sets, in order. Checkpoints record it so a resumed run can detect that it
// was handed a structure built from different inputs.
//
// Set boundaries and vector lengths are part of the digest, so moving a row
// from one set to the next changes the fingerprint.
func Fingerprint(target Vector, sets ...[]Vector) uint64 {
	h := xxh3.New()
	var buf []byte

	write := func(v Vector) {
		buf = binary.AppendUvarint(buf[:0], uint64(len(v)))
		buf = AppendKey(buf, v)
		_, _ = h.Write(buf)
	}

	write(target)
	for _, set := range sets {
		buf = binary.AppendUvarint(buf[:0], uint64(len(set)))
		_, _ = h.Write(buf)
		for _, v := range set {
			write(v)
		}
	}
	return h.Sum64()
}
