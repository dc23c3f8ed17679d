// Package analog turns pointing-device movement into the per-cycle layer and
// modifier hint consumed by the keyboard resolver.
package analog

import (
	"sync/atomic"

	"adnw/internal/layout"
)

// Hint is the analog contribution to one report cycle.
type Hint struct {
	X, Y  int
	Mods  layout.Modifier
	Layer int
}

// Source supplies one hint per cycle.
type Source interface {
	Hint() Hint
}

// Static is a Source returning a fixed hint.
type Static Hint

// Hint implements Source.
func (s Static) Hint() Hint { return Hint(s) }

// Config controls how deltas map to layers and modifiers.
type Config struct {
	Threshold      int
	LayerPositiveX int
	LayerNegativeX int
	ModsPositiveY  layout.Modifier
	ModsNegativeY  layout.Modifier
}

// DefaultConfig returns the tilt mapping of the stock trackpoint setup.
func DefaultConfig() Config {
	return Config{
		Threshold:      1,
		LayerPositiveX: 3,
		LayerNegativeX: 2,
		ModsPositiveY:  layout.ModLShift,
		ModsNegativeY:  layout.ModLCtrl,
	}
}

// Mapper converts deltas into hints.
type Mapper struct {
	cfg Config
}

// NewMapper creates a mapper.
func NewMapper(cfg Config) *Mapper {
	return &Mapper{cfg: cfg}
}

// Map returns the hint for a movement of (dx, dy).
func (m *Mapper) Map(dx, dy int) Hint {
	h := Hint{X: dx, Y: dy}
	switch {
	case dx > m.cfg.Threshold:
		h.Layer = m.cfg.LayerPositiveX
	case dx < -m.cfg.Threshold:
		h.Layer = m.cfg.LayerNegativeX
	}
	switch {
	case dy > m.cfg.Threshold:
		h.Mods |= m.cfg.ModsPositiveY
	case dy < -m.cfg.Threshold:
		h.Mods |= m.cfg.ModsNegativeY
	}
	return h
}

// Device is a Source fed by a pointing-device driver. Move may be called
// from the driver goroutine while the keyboard reads Hint.
type Device struct {
	mapper *Mapper
	last   atomic.Uint64
}

// NewDevice creates a device source.
func NewDevice(m *Mapper) *Device {
	return &Device{mapper: m}
}

// Move records the latest movement.
func (d *Device) Move(dx, dy int) {
	d.last.Store(uint64(uint32(int32(dx)))<<32 | uint64(uint32(int32(dy))))
}

// Hint implements Source. The stored movement is consumed.
func (d *Device) Hint() Hint {
	v := d.last.Swap(0)
	dx := int(int32(uint32(v >> 32)))
	dy := int(int32(uint32(v)))
	return d.mapper.Map(dx, dy)
}
