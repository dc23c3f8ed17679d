package matrix

import (
	"fmt"

	"adnw/internal/tick"
)

// Sampler reads the raw column levels of one row. Levels are active-low.
type Sampler interface {
	Sample(row int) Bits
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(row int) Bits

// Sample calls f(row).
func (f SamplerFunc) Sample(row int) Bits {
	return f(row)
}

// Config describes the matrix geometry and edge timing.
type Config struct {
	Rows         int
	Cols         int
	DebounceBits int
	RepeatMask   Bits
	RepeatStart  uint32
	RepeatNext   uint32
}

// DefaultConfig returns the geometry of the split keyboard: two 4x6 halves
// stacked into one 8x6 matrix.
func DefaultConfig() Config {
	return Config{
		Rows:         8,
		Cols:         6,
		DebounceBits: DefaultDebounceBits,
		RepeatMask:   ColumnMask(6),
		RepeatStart:  DefaultRepeatStart,
		RepeatNext:   DefaultRepeatNext,
	}
}

// Validate checks the geometry.
func (c Config) Validate() error {
	if c.Rows <= 0 || c.Rows > 255 {
		return fmt.Errorf("matrix: rows must be in 1..255, got %d", c.Rows)
	}
	if c.Cols <= 0 || c.Cols > MaxCols {
		return fmt.Errorf("matrix: cols must be in 1..%d, got %d", MaxCols, c.Cols)
	}
	if c.DebounceBits < 1 || c.DebounceBits > 4 {
		return fmt.Errorf("matrix: debounce bits must be in 1..4, got %d", c.DebounceBits)
	}
	return nil
}

// Scanner runs one scan cycle: sample, debounce, detect edges and fold them
// into the persistent row aggregate.
type Scanner struct {
	cfg     Config
	all     Bits
	sampler Sampler
	deb     *Debouncer
	edges   *EdgeTracker

	rowData []Bits
	pressed []Bits
}

// NewScanner creates a Scanner reading from sampler.
func NewScanner(cfg Config, sampler Sampler) (*Scanner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	all := ColumnMask(cfg.Cols)
	return &Scanner{
		cfg:     cfg,
		all:     all,
		sampler: sampler,
		deb:     NewDebouncer(cfg.Rows, cfg.Cols, cfg.DebounceBits),
		edges:   NewEdgeTracker(cfg.Rows, cfg.RepeatMask&all, cfg.RepeatStart, cfg.RepeatNext),
		rowData: make([]Bits, cfg.Rows),
		pressed: make([]Bits, cfg.Rows),
	}, nil
}

// Config returns the scanner geometry.
func (s *Scanner) Config() Config {
	return s.cfg
}

// Scan runs one cycle over every row.
func (s *Scanner) Scan(now tick.Tick) {
	for row := 0; row < s.cfg.Rows; row++ {
		raw := s.sampler.Sample(row)
		flipped := s.deb.Update(row, raw)
		s.edges.Record(row, s.deb.State(row), flipped, now)

		p := s.edges.Press.TestAndClear(row, s.all)
		h := s.edges.Repeat.TestAndClear(row, s.all)
		r := s.edges.Release.TestAndClear(row, s.all)

		s.rowData[row] = (s.rowData[row] | p | h) &^ r
		s.pressed[row] = p
	}
}

// Row returns the aggregate "currently down" bitmap of a row.
func (s *Scanner) Row(row int) Bits {
	return s.rowData[row]
}

// Pressed returns the press edges consumed by the most recent Scan.
func (s *Scanner) Pressed(row int) Bits {
	return s.pressed[row]
}

// Debounced returns the debounced state of a row.
func (s *Scanner) Debounced(row int) Bits {
	return s.deb.State(row)
}

// Window returns the debounce window in samples.
func (s *Scanner) Window() int {
	return s.deb.Window()
}

// Each calls fn for every down coordinate in row-major order.
func (s *Scanner) Each(fn func(row, col int)) {
	for row, b := range s.rowData {
		for col := 0; b != 0 && col < s.cfg.Cols; col++ {
			if b.IsSet(col) {
				fn(row, col)
			}
		}
	}
}
