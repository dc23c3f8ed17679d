package matrix

// Debouncer filters raw contact samples with a vertical counter: every column
// owns an n-bit down-counter spread across n bit-planes. A column whose raw
// level agrees with its debounced state has its counter reset to all ones; a
// disagreeing column counts down once per sample, and the debounced bit only
// toggles when the counter rolls over, i.e. after 2^n consecutive disagreeing
// samples.
//
// With two planes this is the classic ct0/ct1 scheme and the window is four
// samples.
type Debouncer struct {
	mask   Bits
	planes [][]Bits
	state  []Bits
}

// DefaultDebounceBits is the counter width of the classic two-plane filter.
const DefaultDebounceBits = 2

// NewDebouncer creates a Debouncer for rows x cols with the given counter width.
func NewDebouncer(rows, cols, counterBits int) *Debouncer {
	if counterBits <= 0 {
		counterBits = DefaultDebounceBits
	}
	d := &Debouncer{
		mask:   ColumnMask(cols),
		planes: make([][]Bits, counterBits),
		state:  make([]Bits, rows),
	}
	for p := range d.planes {
		d.planes[p] = make([]Bits, rows)
		for r := range d.planes[p] {
			d.planes[p][r] = ^Bits(0)
		}
	}
	return d
}

// Window returns the number of consecutive samples needed to flip a column.
func (d *Debouncer) Window() int {
	return 1 << uint(len(d.planes))
}

// Update feeds one raw sample for row and returns the columns whose debounced
// state flipped. Raw samples are active-low: a cleared bit is a closed contact.
func (d *Debouncer) Update(row int, raw Bits) Bits {
	changed := (d.state[row] ^ ^raw) & d.mask

	borrow := changed
	rolled := changed
	for p := range d.planes {
		old := d.planes[p][row]
		next := (old ^ borrow) | ^changed
		borrow &= ^old
		d.planes[p][row] = next
		rolled &= next
	}

	d.state[row] ^= rolled
	return rolled
}

// State returns the debounced state of row; a set bit is a pressed key.
func (d *Debouncer) State(row int) Bits {
	return d.state[row]
}
