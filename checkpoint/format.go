package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/trisum/internal/hash"
)

const (
	// Magic identifies checkpoint blobs (ASCII "TSCK").
	Magic = "TSCK"
	// Version is the current checkpoint format version.
	Version uint16 = 1

	// Ext is the file extension of checkpoint blobs.
	Ext = ".tsck"
	// LatestPrefix prefixes the pointer blob naming the newest checkpoint of a kind.
	LatestPrefix = "LATEST-"

	// fixedHeaderSize is the header size without the label and trailing CRC.
	fixedHeaderSize = 50
	maxLabelLen     = 255
)

var (
	ErrInvalidMagic        = errors.New("checkpoint: invalid magic")
	ErrUnsupportedVersion  = errors.New("checkpoint: unsupported version")
	ErrKindMismatch        = errors.New("checkpoint: kind mismatch")
	ErrCorrupt             = errors.New("checkpoint: corrupt payload")
	ErrChecksumMismatch    = errors.New("checkpoint: checksum mismatch")
	ErrFingerprintMismatch = errors.New("checkpoint: input fingerprint mismatch")
	ErrInvalidLabel        = errors.New("checkpoint: invalid label")
	ErrUnknownCompression  = errors.New("checkpoint: unknown compression")
)

// ChecksumMismatchError reports which section of a checkpoint failed verification.
type ChecksumMismatchError struct {
	Name    string
	Section string // "header" or "payload"
	Want    uint32
	Got     uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checkpoint %s: %s checksum mismatch (want %08x, got %08x)", e.Name, e.Section, e.Want, e.Got)
}

func (e *ChecksumMismatchError) Unwrap() error {
	return ErrChecksumMismatch
}

// Kind identifies the structure stored in a checkpoint.
type Kind uint8

const (
	KindIndex Kind = 1
	KindDiffs Kind = 2
)

// String returns the kind name used in blob names.
func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindDiffs:
		return "diffs"
	default:
		return fmt.Sprintf("kind%d", uint8(k))
	}
}

// PointerName returns the name of the LATEST pointer blob for k.
func (k Kind) PointerName() string {
	return LatestPrefix + k.String()
}

// Header describes a stored checkpoint.
//
// Layout (little endian):
//
//	0   magic        [4]byte
//	4   version      uint16
//	6   kind         uint8
//	7   compression  uint8
//	8   columns      uint32
//	12  fingerprint  uint64
//	20  created      int64 (unix nanoseconds)
//	28  rawSize      uint64
//	36  storedSize   uint64
//	44  payloadCRC   uint32
//	48  labelLen     uint16
//	50  label        [labelLen]byte
//	..  headerCRC    uint32
type Header struct {
	Version     uint16
	Kind        Kind
	Compression Compression
	Columns     int
	Fingerprint uint64
	Created     time.Time
	Label       string
	RawSize     int64
	StoredSize  int64
	PayloadCRC  uint32
}

// Size returns the encoded header size in bytes.
func (h *Header) Size() int {
	return fixedHeaderSize + len(h.Label) + 4
}

func validateLabel(label string) error {
	if label == "" || len(label) > maxLabelLen {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	if strings.ContainsAny(label, "/\\ \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

// appendHeader encodes h, including its trailing CRC, onto dst.
func appendHeader(dst []byte, h *Header) []byte {
	start := len(dst)
	dst = append(dst, Magic...)
	dst = binary.LittleEndian.AppendUint16(dst, h.Version)
	dst = append(dst, byte(h.Kind), byte(h.Compression))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(h.Columns))
	dst = binary.LittleEndian.AppendUint64(dst, h.Fingerprint)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.Created.UnixNano()))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.RawSize))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.StoredSize))
	dst = binary.LittleEndian.AppendUint32(dst, h.PayloadCRC)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(h.Label)))
	dst = append(dst, h.Label...)
	return binary.LittleEndian.AppendUint32(dst, hash.CRC32C(dst[start:]))
}

// parseHeader decodes and verifies the header at the start of data.
func parseHeader(name string, data []byte) (*Header, error) {
	if len(data) < fixedHeaderSize {
		if len(data) >= 4 && string(data[:4]) != Magic {
			return nil, ErrInvalidMagic
		}
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	if string(data[:4]) != Magic {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidMagic, data[:4])
	}

	h := &Header{Version: binary.LittleEndian.Uint16(data[4:])}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}

	labelLen := int(binary.LittleEndian.Uint16(data[48:]))
	end := fixedHeaderSize + labelLen
	if len(data) < end+4 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	want := binary.LittleEndian.Uint32(data[end:])
	if got := hash.CRC32C(data[:end]); got != want {
		return nil, &ChecksumMismatchError{Name: name, Section: "header", Want: want, Got: got}
	}

	h.Kind = Kind(data[6])
	h.Compression = Compression(data[7])
	h.Columns = int(binary.LittleEndian.Uint32(data[8:]))
	h.Fingerprint = binary.LittleEndian.Uint64(data[12:])
	h.Created = time.Unix(0, int64(binary.LittleEndian.Uint64(data[20:]))).UTC()
	h.RawSize = int64(binary.LittleEndian.Uint64(data[28:]))
	h.StoredSize = int64(binary.LittleEndian.Uint64(data[36:]))
	h.PayloadCRC = binary.LittleEndian.Uint32(data[44:])
	h.Label = string(data[fixedHeaderSize:end])
	return h, nil
}
