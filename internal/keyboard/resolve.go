package keyboard

import (
	"adnw/internal/analog"
	"adnw/internal/layout"
)

// Resolution is the layer and modifier byte chosen for one cycle.
type Resolution struct {
	Layer int
	Mods  layout.Modifier
	// LayerConflict is set when more than one layer key was held; the
	// first one in the active-key list won.
	LayerConflict bool
}

// Resolve picks the active layer and modifiers. altMode selects altLayer
// when no layer key is held; otherwise the hint's layer applies.
func Resolve(l *layout.Layout, keys []ActiveKey, hint analog.Hint, altMode bool, altLayer int) Resolution {
	var res Resolution
	found := false
	for _, k := range keys {
		e := l.Lookup(0, int(k.Row), int(k.Col))
		switch e.Class() {
		case layout.ClassLayer:
			if found {
				res.LayerConflict = true
				continue
			}
			found = true
			res.Layer = e.Index.Layer()
		case layout.ClassModifier:
			res.Mods |= e.Index.ModifierBit()
		}
	}
	if !found {
		if altMode {
			res.Layer = altLayer
		} else {
			res.Layer = hint.Layer
		}
	}
	res.Mods |= hint.Mods

	for _, k := range keys {
		if k.Plain {
			res.Mods |= l.Lookup(res.Layer, int(k.Row), int(k.Col)).Mods
			break
		}
	}
	return res
}
