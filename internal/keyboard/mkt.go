package keyboard

import (
	"adnw/internal/tick"
)

// DefaultMKTTimeout is the tap window in ticks, about 0.3s at 61Hz.
const DefaultMKTTimeout = 18

// MKTState is the state of the mode-key-tap machine.
type MKTState int

const (
	MKTInit MKTState = iota
	MKTReset
	MKTTooManyKeys
	MKTTapPending
)

// String returns the state name.
func (s MKTState) String() string {
	switch s {
	case MKTInit:
		return "init"
	case MKTReset:
		return "reset"
	case MKTTooManyKeys:
		return "too-many-keys"
	case MKTTapPending:
		return "tap-pending"
	default:
		return "unknown"
	}
}

// MKT decides whether a lone modifier or layer key that is pressed and
// released quickly is emitted as its tap keycode.
type MKT struct {
	state     MKTState
	candidate ActiveKey
	armedAt   tick.Tick
	timeout   uint32
	disabled  bool
}

// NewMKT creates a machine in MKTInit whose timer has already run out at
// tick zero. A zero timeout uses the default.
func NewMKT(timeout uint32) *MKT {
	if timeout == 0 {
		timeout = DefaultMKTTimeout
	}
	m := &MKT{timeout: timeout}
	m.expire(0)
	return m
}

// expire backdates the timer so that it has just run out at now.
func (m *MKT) expire(now tick.Tick) {
	m.armedAt = now - tick.Tick(m.timeout)
}

// State returns the current state.
func (m *MKT) State() MKTState { return m.state }

// Candidate returns the key remembered when the machine armed.
func (m *MKT) Candidate() ActiveKey { return m.candidate }

// Insert observes an insertion into the active-key list; count is the list
// length after the insertion.
func (m *MKT) Insert(k ActiveKey, count int, now tick.Tick) {
	if count > 1 {
		m.state = MKTTooManyKeys
		return
	}
	if m.disabled || count != 1 || k.Plain || m.state != MKTInit {
		return
	}
	m.state = MKTTapPending
	m.candidate = k
	m.armedAt = now
}

// Begin runs the start-of-cycle checks against the active-key count of the
// previous cycle. It returns the candidate and true when the tap must be
// emitted instead of a regular report.
//
// Once the timer has run out the machine is forced to MKTReset every cycle,
// so it can only arm again after a cycle with no keys down.
func (m *MKT) Begin(count int, now tick.Tick) (ActiveKey, bool) {
	if tick.Reached(now, m.armedAt.Add(m.timeout)) {
		m.state = MKTReset
		// keep the timer pinned to now so a long idle stretch cannot wrap it
		m.expire(now)
	}
	if count != 0 {
		return ActiveKey{}, false
	}
	tap := m.state == MKTTapPending
	m.state = MKTInit
	return m.candidate, tap
}
