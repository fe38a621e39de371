package row

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector(t *testing.T) {
	t.Run("NewCopies", func(t *testing.T) {
		src := []int64{1, 2, 3}
		v := New(src...)
		src[0] = 99
		assert.Equal(t, Vector{1, 2, 3}, v)
	})

	t.Run("Fill", func(t *testing.T) {
		assert.Equal(t, Vector{5, 5, 5}, Fill(3, 5))
		assert.Empty(t, Fill(-1, 5))
	})

	t.Run("AddSub", func(t *testing.T) {
		a := New(1, -2, 3)
		b := New(4, 5, -6)
		assert.Equal(t, Vector{5, 3, -3}, a.Add(b))
		assert.Equal(t, Vector{-3, -7, 9}, a.Sub(b))
		assert.Equal(t, Vector{1, -2, 3}, a, "receiver must not change")
	})

	t.Run("LengthMismatchPanics", func(t *testing.T) {
		assert.Panics(t, func() { New(1).Add(New(1, 2)) })
	})

	t.Run("Equal", func(t *testing.T) {
		assert.True(t, New(1, 2).Equal(New(1, 2)))
		assert.False(t, New(1, 2).Equal(New(2, 1)))
		assert.False(t, New(1, 2).Equal(New(1, 2, 0)))
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "(1, -2, 3)", New(1, -2, 3).String())
		assert.Equal(t, "(7,)", New(7).String())
		assert.Equal(t, "()", New().String())
		assert.Equal(t, "(1, 1) (1, 1) (3, 3)", Format(New(1, 1), New(1, 1), New(3, 3)))
	})

	t.Run("CheckLen", func(t *testing.T) {
		require.NoError(t, CheckLen(New(1, 2), 2))
		require.ErrorIs(t, CheckLen(New(1, 2), 3), ErrLengthMismatch)
	})
}

func TestKey(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		for _, v := range []Vector{
			New(),
			New(0),
			New(1, -1, 63, -64, 64, -65),
			New(1<<40, -(1 << 40), 180, -180),
		} {
			got, err := KeyOf(v).Vector()
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "round trip of %v gave %v", v, got)
		}
	})

	t.Run("DistinctVectorsDistinctKeys", func(t *testing.T) {
		seen := make(map[Key]Vector)
		for a := int64(-20); a <= 20; a++ {
			for b := int64(-20); b <= 20; b++ {
				v := New(a, b)
				k := KeyOf(v)
				prev, dup := seen[k]
				require.False(t, dup, "%v and %v share a key", prev, v)
				seen[k] = v
			}
		}
	})

	t.Run("SumAndDiffKeys", func(t *testing.T) {
		a, b := New(1, 2, -3), New(10, -20, 30)
		assert.Equal(t, KeyOf(a.Add(b)), Key(AppendSumKey(nil, a, b)))

		target := Fill(3, 180)
		assert.Equal(t, KeyOf(target.Sub(a)), Key(AppendDiffKey(nil, target, a)))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		_, err := Key([]byte{0x80}).Vector()
		require.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("HashStable", func(t *testing.T) {
		assert.Equal(t, KeyOf(New(1, 2)).Hash(), KeyOf(New(1, 2)).Hash())
	})
}

func TestFingerprint(t *testing.T) {
	target := Fill(2, 5)
	a := []Vector{New(1, 1), New(2, 2)}
	b := []Vector{New(3, 3)}

	assert.Equal(t, Fingerprint(target, a, b), Fingerprint(target, a, b))
	assert.NotEqual(t, Fingerprint(target, a, b), Fingerprint(Fill(2, 6), a, b))
	assert.NotEqual(t, Fingerprint(target, a, b), Fingerprint(target, b, a))
	assert.NotEqual(t,
		Fingerprint(target, a, b),
		Fingerprint(target, []Vector{New(1, 1)}, []Vector{New(2, 2), New(3, 3)}),
	)
}

func BenchmarkAppendSumKey(b *testing.B) {
	x := Fill(40, 3)
	y := Fill(40, 90)
	buf := make([]byte, 0, 128)
	b.ReportAllocs()
	for b.Loop() {
		buf = AppendSumKey(buf[:0], x, y)
	}
}
