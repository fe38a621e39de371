// Package partition splits ordered row collections into contiguous chunks for
// parallel build and probe phases.
//
// Chunks never overlap, never reorder rows and differ in size by at most one
// row. The first total%n chunks carry the extra row. Asking for more chunks
// than rows yields trailing empty chunks; asking for zero or fewer chunks
// degrades to a single chunk. Neither case is an error.
package partition

// Range is a half-open interval [Start, End) of row positions.
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r Range) Len() int { return r.End - r.Start }

// Empty reports whether the range holds no rows.
func (r Range) Empty() bool { return r.End <= r.Start }

// Ranges divides total rows into n contiguous ranges.
func Ranges(total, n int) []Range {
	if n <= 0 {
		n = 1
	}
	if total < 0 {
		total = 0
	}

	base, extra := total/n, total%n
	out := make([]Range, n)
	start := 0
	for i := range out {
		size := base
		if i < extra {
			size++
		}
		out[i] = Range{Start: start, End: start + size}
		start += size
	}
	return out
}

// NonEmpty returns the non-empty ranges of Ranges(total, n), in order.
func NonEmpty(total, n int) []Range {
	rs := Ranges(total, n)
	out := rs[:0]
	for _, r := range rs {
		if !r.Empty() {
			out = append(out, r)
		}
	}
	return out
}
