// Package keyboard turns the debounced matrix into HID keyboard reports: it
// extracts the held keys, disambiguates tap from hold on lone modifier and
// layer keys, resolves the active layer and modifiers, and assembles the
// report.
package keyboard

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"adnw/internal/analog"
	"adnw/internal/layout"
	"adnw/internal/matrix"
	"adnw/internal/tick"
)

// Signal is a bit set of non-fatal conditions seen during a cycle.
type Signal uint8

const (
	SignalActiveOverflow Signal = 1 << iota
	SignalReportOverflow
	SignalLayerConflict
)

var signalNames = []struct {
	sig  Signal
	name string
}{
	{SignalActiveOverflow, "active_overflow"},
	{SignalReportOverflow, "report_overflow"},
	{SignalLayerConflict, "layer_conflict"},
}

// String lists the set signals.
func (s Signal) String() string {
	out := ""
	for _, n := range signalNames {
		if s&n.sig == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += n.name
	}
	if out == "" {
		return "none"
	}
	return out
}

// Each calls fn for every set signal.
func (s Signal) Each(fn func(Signal, string)) {
	for _, n := range signalNames {
		if s&n.sig != 0 {
			fn(n.sig, n.name)
		}
	}
}

// Observer receives the signals of every cycle that raised any. It is
// called from the polling goroutine and must not block.
type Observer interface {
	Observe(Signal)
}

// MouseButton maps a matrix position to a mouse button bit while pointer
// emulation is on.
type MouseButton struct {
	matrix.Coord
	Button uint8
}

// Config holds the pipeline settings.
type Config struct {
	ActiveCapacity int
	ReportCapacity int
	MKTEnabled     bool
	MKTTimeout     uint32

	MouseToggleEnabled bool
	MouseToggle        matrix.Coord
	MouseLayer         int
	MouseButtons       []MouseButton
}

// DefaultConfig returns the settings of the AdNW board.
func DefaultConfig() Config {
	return Config{
		ActiveCapacity:     DefaultActiveCapacity,
		ReportCapacity:     MaxReportKeys,
		MKTEnabled:         true,
		MKTTimeout:         DefaultMKTTimeout,
		MouseToggleEnabled: true,
		MouseToggle:        matrix.Coord{Row: 3, Col: 0},
		MouseLayer:         4,
		MouseButtons: []MouseButton{
			{Coord: matrix.Coord{Row: 5, Col: 1}, Button: 0x01},
			{Coord: matrix.Coord{Row: 5, Col: 2}, Button: 0x04},
			{Coord: matrix.Coord{Row: 5, Col: 3}, Button: 0x02},
			{Coord: matrix.Coord{Row: 4, Col: 1}, Button: 0x08},
		},
	}
}

// ErrLayoutMismatch is returned for a layout that does not cover the matrix.
var ErrLayoutMismatch = errors.New("layout does not match matrix")

// Keyboard is the report pipeline. ProduceReport, MKTState and ActiveKeys
// belong to the polling goroutine; the other methods may be called from any.
type Keyboard struct {
	cfg     Config
	clock   tick.Clock
	scanner *matrix.Scanner
	layout  atomic.Pointer[layout.Layout]
	analog  analog.Source

	active *ActiveKeys
	mkt    *MKT

	mouseMode    atomic.Bool
	mouseButtons atomic.Uint32

	// signals accumulates the current cycle; last is what Signals reports.
	signals  Signal
	raised   Signal
	last     atomic.Uint32
	observer Observer
	logger   *slog.Logger
}

// Option configures a Keyboard.
type Option func(*Keyboard)

// WithAnalog sets the analog hint source.
func WithAnalog(src analog.Source) Option {
	return func(k *Keyboard) { k.analog = src }
}

// WithObserver sets the diagnostic signal observer.
func WithObserver(o Observer) Option {
	return func(k *Keyboard) { k.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Keyboard) { k.logger = l }
}

// New creates the pipeline on top of a scanner, reading time from clock.
func New(cfg Config, scanner *matrix.Scanner, lay *layout.Layout, clock tick.Clock, opts ...Option) (*Keyboard, error) {
	if cfg.ActiveCapacity <= 0 {
		cfg.ActiveCapacity = DefaultActiveCapacity
	}
	if cfg.ReportCapacity <= 0 || cfg.ReportCapacity > MaxReportKeys {
		return nil, fmt.Errorf("report capacity %d out of range 1..%d", cfg.ReportCapacity, MaxReportKeys)
	}
	k := &Keyboard{
		cfg:     cfg,
		clock:   clock,
		scanner: scanner,
		active:  NewActiveKeys(cfg.ActiveCapacity),
		mkt:     NewMKT(cfg.MKTTimeout),
		logger:  slog.Default(),
	}
	k.mkt.disabled = !cfg.MKTEnabled
	k.mkt.expire(clock.Now())
	for _, opt := range opts {
		opt(k)
	}
	if err := k.SetLayout(lay); err != nil {
		return nil, err
	}
	return k, nil
}

// SetLayout swaps the layout table. The next cycle uses the new table.
func (k *Keyboard) SetLayout(l *layout.Layout) error {
	sc := k.scanner.Config()
	if l == nil || l.Rows() != sc.Rows || l.Cols() != sc.Cols {
		return fmt.Errorf("%w: want %dx%d", ErrLayoutMismatch, sc.Rows, sc.Cols)
	}
	k.layout.Store(l)
	return nil
}

// Layout returns the current layout table.
func (k *Keyboard) Layout() *layout.Layout {
	return k.layout.Load()
}

// MouseMode reports whether pointer emulation is on.
func (k *Keyboard) MouseMode() bool {
	return k.mouseMode.Load()
}

// SetMouseMode switches pointer emulation.
func (k *Keyboard) SetMouseMode(on bool) {
	k.mouseMode.Store(on)
}

// MouseButtons returns the mouse button bits of the last cycle.
func (k *Keyboard) MouseButtons() uint8 {
	return uint8(k.mouseButtons.Load())
}

// Signals returns the conditions raised during the last cycle.
func (k *Keyboard) Signals() Signal {
	return Signal(k.last.Load())
}

// MKTState returns the tap machine state.
func (k *Keyboard) MKTState() MKTState {
	return k.mkt.State()
}

// ActiveKeys returns a copy of the active-key list of the last cycle.
func (k *Keyboard) ActiveKeys() []ActiveKey {
	return append([]ActiveKey(nil), k.active.Keys()...)
}

// ProduceReport runs one cycle of the pipeline and returns the report to
// send. It never fails; degraded cycles are flagged through Signals.
func (k *Keyboard) ProduceReport() Report {
	now := k.clock.Now()
	lay := k.layout.Load()

	if key, ok := k.mkt.Begin(k.active.Len(), now); ok {
		var rep Report
		rep.Keys[0] = lay.Tap(int(key.Row), int(key.Col))
		k.signals = 0
		k.last.Store(0)
		return rep
	}

	k.scanner.Scan(now)
	k.signals = 0

	if k.cfg.MouseToggleEnabled {
		t := k.cfg.MouseToggle
		if k.scanner.Pressed(int(t.Row)).IsSet(int(t.Col)) {
			on := !k.mouseMode.Load()
			k.mouseMode.Store(on)
			k.logger.Info("pointer emulation toggled", "on", on)
		}
	}

	k.extract(lay, now)

	var hint analog.Hint
	mouse := k.mouseMode.Load()
	var buttons uint8
	if mouse {
		for _, b := range k.cfg.MouseButtons {
			if k.scanner.Row(int(b.Row)).IsSet(int(b.Col)) {
				buttons |= b.Button
			}
		}
	} else if k.analog != nil {
		hint = k.analog.Hint()
	}
	k.mouseButtons.Store(uint32(buttons))

	keys := k.active.Keys()
	res := Resolve(lay, keys, hint, mouse, k.cfg.MouseLayer)
	if res.LayerConflict {
		k.signals |= SignalLayerConflict
	}
	rep, overflow := Assemble(lay, keys, res, k.cfg.ReportCapacity)
	if overflow {
		k.signals |= SignalReportOverflow
	}

	k.publish()
	return rep
}

func (k *Keyboard) extract(lay *layout.Layout, now tick.Tick) {
	k.active.Reset()
	k.scanner.Each(func(row, col int) {
		key := ActiveKey{
			Coord: matrix.Coord{Row: uint8(row), Col: uint8(col)},
			Plain: lay.Classify(row, col) == layout.ClassPlain,
		}
		if !k.active.Add(key) {
			k.signals |= SignalActiveOverflow
			return
		}
		k.mkt.Insert(key, k.active.Len(), now)
	})
}

// publish forwards signals to the observer and logs each condition once
// when it starts.
func (k *Keyboard) publish() {
	k.last.Store(uint32(k.signals))
	if k.signals != 0 && k.observer != nil {
		k.observer.Observe(k.signals)
	}
	started := k.signals &^ k.raised
	k.raised = k.signals
	started.Each(func(_ Signal, name string) {
		k.logger.Warn("keyboard condition", "signal", name, "active", k.active.Len())
	})
}
