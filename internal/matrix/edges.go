package matrix

import "adnw/internal/tick"

// Repeat timing defaults, in ticks of the 61 Hz time base.
const (
	DefaultRepeatStart = 31
	DefaultRepeatNext  = 15
)

// EdgeTracker derives press, release and auto-repeat edges from debounced state.
type EdgeTracker struct {
	Press   *EdgeVector
	Release *EdgeVector
	Repeat  *EdgeVector

	repeatMask  Bits
	repeatStart uint32
	repeatNext  uint32
	deadline    []tick.Tick
}

// NewEdgeTracker creates an EdgeTracker. Only columns in repeatMask auto-repeat.
func NewEdgeTracker(rows int, repeatMask Bits, start, next uint32) *EdgeTracker {
	return &EdgeTracker{
		Press:       NewEdgeVector(rows),
		Release:     NewEdgeVector(rows),
		Repeat:      NewEdgeVector(rows),
		repeatMask:  repeatMask,
		repeatStart: start,
		repeatNext:  next,
		deadline:    make([]tick.Tick, rows),
	}
}

// Record accumulates the edges for one row after the debouncer ran. state is
// the row's debounced state and flipped the columns that just toggled.
func (e *EdgeTracker) Record(row int, state, flipped Bits, now tick.Tick) {
	e.Press.SetBits(row, state&flipped)
	e.Release.SetBits(row, ^state&flipped)

	if state&e.repeatMask == 0 {
		e.deadline[row] = now.Add(e.repeatStart)
	}
	if tick.Reached(now, e.deadline[row]) {
		e.deadline[row] = now.Add(e.repeatNext)
		e.Repeat.SetBits(row, state&e.repeatMask)
	}
}
