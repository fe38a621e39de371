package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Version:     Version,
		Kind:        KindDiffs,
		Compression: CompressionLZ4,
		Columns:     40,
		Fingerprint: 0xdeadbeefcafef00d,
		Created:     time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		Label:       "run-7",
		RawSize:     1234,
		StoredSize:  567,
		PayloadCRC:  0x01020304,
	}
	data := appendHeader(nil, h)
	require.Len(t, data, h.Size())

	got, err := parseHeader("x", data)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseHeader_Errors(t *testing.T) {
	h := &Header{Version: Version, Kind: KindIndex, Columns: 2, Label: "l", Created: time.Unix(0, 0)}
	good := appendHeader(nil, h)

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		copy(bad, "NOPE")
		_, err := parseHeader("x", bad)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[4] = 9
		_, err := parseHeader("x", bad)
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[10] ^= 0xFF
		_, err := parseHeader("x", bad)
		require.ErrorIs(t, err, ErrChecksumMismatch)
		var cm *ChecksumMismatchError
		require.ErrorAs(t, err, &cm)
		assert.Equal(t, "header", cm.Section)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := parseHeader("x", good[:fixedHeaderSize+1])
		assert.ErrorIs(t, err, ErrCorrupt)
		_, err = parseHeader("x", good[:10])
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestKind(t *testing.T) {
	assert.Equal(t, "index", KindIndex.String())
	assert.Equal(t, "LATEST-diffs", KindDiffs.PointerName())
	assert.Equal(t, "kind9", Kind(9).String())
}

func TestValidateLabel(t *testing.T) {
	assert.NoError(t, validateLabel("20260101T000000.000000000Z"))
	for _, bad := range []string{"", "a/b", "a b", string(make([]byte, 256))} {
		assert.ErrorIs(t, validateLabel(bad), ErrInvalidLabel, "%q", bad)
	}
}

func TestCompression(t *testing.T) {
	raw := make([]byte, 4096)
	for i := range raw {
		raw[i] = byte(i % 7)
	}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			stored, used, err := compress(raw, c)
			require.NoError(t, err)
			assert.Equal(t, c, used)
			if c != CompressionNone {
				assert.Less(t, len(stored), len(raw))
			}

			got, err := decompress(stored, used, int64(len(raw)))
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}

	_, err := decompress([]byte{1, 2, 3}, CompressionZSTD, 10)
	assert.ErrorIs(t, err, ErrCorrupt)

	// Header sizes are not trusted for allocation.
	lz, _, err := compress(raw, CompressionLZ4)
	require.NoError(t, err)
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		_, err = decompress(lz, c, -1)
		assert.ErrorIs(t, err, ErrCorrupt, c.String())
	}
	_, err = decompress(lz, CompressionLZ4, 1<<62)
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = decompress(lz, CompressionLZ4, int64(len(lz))*maxBlockRatio+1)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, _, err = compress(raw, Compression(7))
	assert.ErrorIs(t, err, ErrUnknownCompression)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrUnknownCompression)
}
