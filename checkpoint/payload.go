package checkpoint

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/trisum/diffset"
	"github.com/hupe1980/trisum/internal/conv"
	"github.com/hupe1980/trisum/pairindex"
	"github.com/hupe1980/trisum/row"
)

// Index payload:
//
//	uvarint nA, nA × (uvarint rowIndex, columns × varint)   A row table
//	uvarint nB, nB × (uvarint rowIndex, columns × varint)   B row table
//	uvarint nPairs, nPairs × (uvarint aSlot, uvarint bSlot)
//
// Keys are not stored; they are recomputed from the rows on load.

type rowTable struct {
	slots map[int]int
	index []int
	rows  []row.Vector
}

func newRowTable() *rowTable {
	return &rowTable{slots: make(map[int]int)}
}

func (t *rowTable) slot(idx int, v row.Vector) int {
	if s, ok := t.slots[idx]; ok {
		return s
	}
	s := len(t.index)
	t.slots[idx] = s
	t.index = append(t.index, idx)
	t.rows = append(t.rows, v)
	return s
}

func (t *rowTable) appendTo(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(t.index)))
	for i, idx := range t.index {
		dst = binary.AppendUvarint(dst, uint64(idx))
		for _, x := range t.rows[i] {
			dst = binary.AppendVarint(dst, x)
		}
	}
	return dst
}

func encodeIndex(ix *pairindex.Index) []byte {
	as, bs := newRowTable(), newRowTable()
	var pairs []byte
	for _, bucket := range ix.All() {
		for _, p := range bucket {
			pairs = binary.AppendUvarint(pairs, uint64(as.slot(p.AIndex, p.A)))
			pairs = binary.AppendUvarint(pairs, uint64(bs.slot(p.BIndex, p.B)))
		}
	}

	out := as.appendTo(nil)
	out = bs.appendTo(out)
	out = binary.AppendUvarint(out, uint64(ix.Pairs()))
	return append(out, pairs...)
}

func decodeIndex(data []byte, columns int) (*pairindex.Index, error) {
	d := &decoder{buf: data}
	aIdx, aRows := d.rowTable(columns)
	bIdx, bRows := d.rowTable(columns)
	n := d.count(2)
	if d.err != nil {
		return nil, d.err
	}

	ix := pairindex.New()
	var key []byte
	for range n {
		as, bs := d.uvarint(), d.uvarint()
		if d.err != nil {
			return nil, d.err
		}
		if as >= uint64(len(aRows)) || bs >= uint64(len(bRows)) {
			return nil, fmt.Errorf("%w: pair slot out of range", ErrCorrupt)
		}
		p := pairindex.Pair{
			AIndex: aIdx[as],
			BIndex: bIdx[bs],
			A:      aRows[as],
			B:      bRows[bs],
		}
		key = row.AppendSumKey(key[:0], p.A, p.B)
		ix.Add(row.Key(key), p)
	}
	if !d.done() {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}
	return ix, nil
}

// Diffs payload:
//
//	uvarint nKeys, nKeys × (uvarint len, key bytes, uvarint len, roaring bitmap)
//
// Entries are written in key order so equal sets encode identically.

func encodeDiffs(s *diffset.Set) ([]byte, error) {
	keys := make([]row.Key, 0, s.Len())
	for k := range s.All() {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := binary.AppendUvarint(nil, uint64(len(keys)))
	for _, k := range keys {
		out = binary.AppendUvarint(out, uint64(len(k)))
		out = append(out, k...)
		bm, err := s.Bitmap(k).ToBytes()
		if err != nil {
			return nil, err
		}
		out = binary.AppendUvarint(out, uint64(len(bm)))
		out = append(out, bm...)
	}
	return out, nil
}

func decodeDiffs(data []byte, columns int) (*diffset.Set, error) {
	d := &decoder{buf: data}
	n := d.count(2)
	s := diffset.New()
	for range n {
		key := row.Key(d.bytes())
		bmData := d.bytes()
		if d.err != nil {
			return nil, d.err
		}
		v, err := key.Vector()
		if err != nil || len(v) != columns {
			return nil, fmt.Errorf("%w: bad key", ErrCorrupt)
		}
		bm := roaring.New()
		if err := bm.UnmarshalBinary(bmData); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		s.InsertBitmap(key, bm)
	}
	if d.err != nil {
		return nil, d.err
	}
	if !d.done() {
		return nil, fmt.Errorf("%w: trailing bytes", ErrCorrupt)
	}
	return s, nil
}

// decoder reads varints from buf, recording the first error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) fail(what string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: truncated %s", ErrCorrupt, what)
	}
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf)
	if n <= 0 {
		d.fail("uvarint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.buf)
	if n <= 0 {
		d.fail("varint")
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

// count reads an element count, rejecting counts that cannot fit in the
// remaining bytes given a minimum encoded size per element.
func (d *decoder) count(minSize int) int {
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.buf)/minSize) {
		d.fail("count")
		return 0
	}
	return int(n)
}

func (d *decoder) bytes() []byte {
	n := d.uvarint()
	if d.err != nil {
		return nil
	}
	if n > uint64(len(d.buf)) {
		d.fail("bytes")
		return nil
	}
	b := d.buf[:n:n]
	d.buf = d.buf[n:]
	return b
}

func (d *decoder) rowTable(columns int) ([]int, []row.Vector) {
	n := d.count(1 + columns)
	idx := make([]int, 0, n)
	rows := make([]row.Vector, 0, n)
	for range n {
		i, err := conv.Uint64ToInt(d.uvarint())
		if err != nil && d.err == nil {
			d.err = fmt.Errorf("%w: row index: %w", ErrCorrupt, err)
		}
		v := make(row.Vector, columns)
		for c := range v {
			v[c] = d.varint()
		}
		if d.err != nil {
			return nil, nil
		}
		idx = append(idx, i)
		rows = append(rows, v)
	}
	return idx, rows
}

func (d *decoder) done() bool {
	return d.err == nil && len(d.buf) == 0
}
