package keyboard

import (
	"adnw/internal/layout"
)

// MaxReportKeys is the keycode capacity of a HID boot keyboard report.
const MaxReportKeys = 6

// ReportSize is the length of an encoded boot report.
const ReportSize = 8

// Report is one keyboard report: a modifier byte and up to six keycodes.
// Unused keycode slots are zero.
type Report struct {
	Mods layout.Modifier
	Keys [MaxReportKeys]layout.Usage
}

// Codes returns the keycodes present in the report.
func (r Report) Codes() []layout.Usage {
	var out []layout.Usage
	for _, u := range r.Keys {
		if u != layout.UsageNone {
			out = append(out, u)
		}
	}
	return out
}

// IsEmpty reports whether the report has no keys and no modifiers.
func (r Report) IsEmpty() bool {
	return r == Report{}
}

// Bytes encodes the report in boot protocol layout: modifier, reserved,
// six keycodes.
func (r Report) Bytes() [ReportSize]byte {
	var b [ReportSize]byte
	b[0] = byte(r.Mods)
	for i, u := range r.Keys {
		b[2+i] = byte(u)
	}
	return b
}

// ParseReport decodes a boot report.
func ParseReport(b [ReportSize]byte) Report {
	r := Report{Mods: layout.Modifier(b[0])}
	for i := range r.Keys {
		r.Keys[i] = layout.Usage(b[2+i])
	}
	return r
}

// Assemble maps the plain active keys through the resolved layer into a
// report holding at most capacity keycodes. It reports overflow when keys
// had to be dropped. No-op entries are skipped.
func Assemble(l *layout.Layout, keys []ActiveKey, res Resolution, capacity int) (Report, bool) {
	if capacity <= 0 || capacity > MaxReportKeys {
		capacity = MaxReportKeys
	}
	rep := Report{Mods: res.Mods}
	n := 0
	overflow := false
	for _, k := range keys {
		if !k.Plain {
			continue
		}
		u := l.Lookup(res.Layer, int(k.Row), int(k.Col)).Usage
		if u == layout.UsageNone {
			continue
		}
		if n == capacity {
			overflow = true
			break
		}
		rep.Keys[n] = u
		n++
	}
	return rep, overflow
}
