// Package sim provides an in-memory key matrix and a typist that drives it,
// so the whole pipeline can run without hardware.
package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"adnw/internal/keyboard"
	"adnw/internal/layout"
	"adnw/internal/matrix"
)

// ErrNoKey is returned when no key position produces a character.
var ErrNoKey = errors.New("sim: no key produces character")

// Matrix is a thread-safe set of closed contacts. It implements
// matrix.Sampler with active-low levels.
type Matrix struct {
	mu     sync.Mutex
	rows   int
	cols   int
	closed []matrix.Bits
}

// NewMatrix creates an open matrix of rows x cols contacts.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{rows: rows, cols: cols, closed: make([]matrix.Bits, rows)}
}

// Sample implements matrix.Sampler.
func (m *Matrix) Sample(row int) matrix.Bits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ^m.closed[row]
}

// Set closes or opens the contact at c. Out-of-range positions are ignored.
func (m *Matrix) Set(c matrix.Coord, down bool) {
	if int(c.Row) >= m.rows || int(c.Col) >= m.cols {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if down {
		m.closed[c.Row] |= matrix.Bit(int(c.Col))
	} else {
		m.closed[c.Row] &^= matrix.Bit(int(c.Col))
	}
}

// Press closes every contact in cs.
func (m *Matrix) Press(cs ...matrix.Coord) {
	for _, c := range cs {
		m.Set(c, true)
	}
}

// Release opens every contact in cs.
func (m *Matrix) Release(cs ...matrix.Coord) {
	for _, c := range cs {
		m.Set(c, false)
	}
}

// ReleaseAll opens every contact.
func (m *Matrix) ReleaseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.closed)
}

// Down reports whether the contact at c is closed.
func (m *Matrix) Down(c matrix.Coord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(c.Row) < m.rows && m.closed[c.Row].IsSet(int(c.Col))
}

// Locate returns the key positions that type r on l: either one plain key on
// the base layer, or a layer key followed by the key on that layer.
func Locate(l *layout.Layout, r rune) ([]matrix.Coord, error) {
	want, ok := layout.CharKey(r)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoKey, r)
	}
	if c, ok := find(l, 0, func(e layout.Entry) bool { return e.Usage == want.Usage && e.Mods == want.Mods && e.Class() == layout.ClassPlain }); ok {
		return []matrix.Coord{c}, nil
	}
	for n := 1; n < l.Layers(); n++ {
		c, ok := find(l, n, func(e layout.Entry) bool { return e.Usage == want.Usage && e.Mods == want.Mods && e.Class() == layout.ClassPlain })
		if !ok {
			continue
		}
		sel, ok := find(l, 0, func(e layout.Entry) bool { return e.Index.IsLayer() && e.Index.Layer() == n })
		if ok && sel != c {
			return []matrix.Coord{sel, c}, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoKey, r)
}

func find(l *layout.Layout, layer int, match func(layout.Entry) bool) (matrix.Coord, bool) {
	for row := 0; row < l.Rows(); row++ {
		for col := 0; col < l.Cols(); col++ {
			if match(l.Lookup(layer, row, col)) {
				return matrix.Coord{Row: uint8(row), Col: uint8(col)}, true
			}
		}
	}
	return matrix.Coord{}, false
}

// Typist presses keys on a Matrix and steps the pipeline, collecting the
// reports it produces.
type Typist struct {
	m    *Matrix
	step func() keyboard.Report

	// Hold is the number of cycles a chord stays down and the number of
	// cycles waited after release. It must exceed the debounce window.
	Hold int
	// Bounce is the number of chattering cycles before a press settles.
	Bounce int

	rng *rand.Rand
}

// NewTypist creates a Typist. step runs one pipeline cycle.
func NewTypist(m *Matrix, step func() keyboard.Report, hold int) *Typist {
	return &Typist{m: m, step: step, Hold: hold, rng: rand.New(rand.NewPCG(1, 2))}
}

// Seed resets the chatter generator.
func (t *Typist) Seed(a, b uint64) {
	t.rng = rand.New(rand.NewPCG(a, b))
}

func (t *Typist) run(n int, out []keyboard.Report) []keyboard.Report {
	for range n {
		out = append(out, t.step())
	}
	return out
}

// Chord presses cs together, holds them, releases them and waits. It
// returns every report produced.
func (t *Typist) Chord(cs ...matrix.Coord) []keyboard.Report {
	var out []keyboard.Report
	for range t.Bounce {
		for _, c := range cs {
			t.m.Set(c, t.rng.IntN(2) == 0)
		}
		out = t.run(1, out)
	}
	t.m.Press(cs...)
	out = t.run(t.Hold, out)
	t.m.Release(cs...)
	return t.run(t.Hold, out)
}

// Type types text one character at a time.
func (t *Typist) Type(l *layout.Layout, text string) ([]keyboard.Report, error) {
	var out []keyboard.Report
	for _, r := range text {
		cs, err := Locate(l, r)
		if err != nil {
			return out, err
		}
		out = append(out, t.Chord(cs...)...)
	}
	return out, nil
}

// Distinct drops consecutive duplicate reports, which is what a host sees
// with write-on-change enabled.
func Distinct(reps []keyboard.Report) []keyboard.Report {
	var out []keyboard.Report
	for i, r := range reps {
		if i > 0 && r == reps[i-1] {
			continue
		}
		out = append(out, r)
	}
	return out
}
