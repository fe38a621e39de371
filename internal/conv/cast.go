package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

// IntToUint32 converts int to uint32 safely.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit uint32", ErrOverflow, v)
	}
	return uint32(v), nil
}

// Uint64ToInt converts uint64 to int safely.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d does not fit int", ErrOverflow, v)
	}
	return int(v), nil
}

// LastIndexUint32 reports whether the row positions [offset, offset+n) all
// fit uint32 and returns the last one. An empty range is valid at any
// non-negative offset.
func LastIndexUint32(offset, n int) (uint32, error) {
	if offset < 0 || n < 0 {
		return 0, fmt.Errorf("%w: negative range [%d, +%d)", ErrOverflow, offset, n)
	}
	if n == 0 {
		return 0, nil
	}
	last := uint64(offset) + uint64(n) - 1
	if last > math.MaxUint32 {
		return 0, fmt.Errorf("%w: row %d does not fit uint32", ErrOverflow, last)
	}
	return uint32(last), nil
}
