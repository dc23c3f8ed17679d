// Package matrix turns raw per-row contact samples into debounced key state,
// press/release/repeat edges and the persistent per-row "down" bitmap.
//
// Each row is a fixed-width bit-vector with one bit per column. Bits are
// manipulated only through the named operations in this file.
package matrix

import (
	"math/bits"
	"sync/atomic"
)

// MaxCols is the widest row a Bits value can carry.
const MaxCols = 32

// Bits is one row of the matrix, one bit per column.
type Bits uint32

// ColumnMask returns a mask with the low cols bits set.
func ColumnMask(cols int) Bits {
	if cols >= MaxCols {
		return ^Bits(0)
	}
	if cols <= 0 {
		return 0
	}
	return Bits(1)<<uint(cols) - 1
}

// Bit returns the mask for a single column.
func Bit(col int) Bits {
	return Bits(1) << uint(col)
}

// IsSet reports whether column col is set.
func (b Bits) IsSet(col int) bool {
	return b&Bit(col) != 0
}

// Count returns the number of set columns.
func (b Bits) Count() int {
	return bits.OnesCount32(uint32(b))
}

// Coord addresses one physical switch.
type Coord struct {
	Row uint8 `json:"row" yaml:"row" toml:"row"`
	Col uint8 `json:"col" yaml:"col" toml:"col"`
}

// EdgeVector holds one pending-edge bit-vector per row.
//
// Bits are accumulated with SetBits and consumed with TestAndClear. Both are
// single atomic read-modify-write operations, so a consumer always observes a
// consistent snapshot and a concurrent accumulation is never lost.
type EdgeVector struct {
	rows []atomic.Uint32
}

// NewEdgeVector allocates an EdgeVector for the given number of rows.
func NewEdgeVector(rows int) *EdgeVector {
	return &EdgeVector{rows: make([]atomic.Uint32, rows)}
}

// SetBits merges bits into the row's pending edges.
func (v *EdgeVector) SetBits(row int, b Bits) {
	if b == 0 {
		return
	}
	v.rows[row].Or(uint32(b))
}

// TestAndClear returns the pending edges selected by mask and clears them.
func (v *EdgeVector) TestAndClear(row int, mask Bits) Bits {
	old := v.rows[row].And(^uint32(mask))
	return Bits(old) & mask
}

// IsSet reports whether an edge is pending for (row, col) without consuming it.
func (v *EdgeVector) IsSet(row, col int) bool {
	return Bits(v.rows[row].Load()).IsSet(col)
}

// Peek returns the pending edges of a row without consuming them.
func (v *EdgeVector) Peek(row int) Bits {
	return Bits(v.rows[row].Load())
}
