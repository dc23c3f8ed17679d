// Package layout holds the immutable key-layout table: for every layer, row
// and column it yields a HID keycode plus either a modifier byte carried with
// that keycode or a modifier-table index marking the key as a modifier or a
// layer-select key.
package layout

// Usage is a HID keyboard/keypad page usage code.
type Usage uint8

// Keyboard page usages used by the layouts.
const (
	UsageNone Usage = 0x00

	UsageA Usage = 0x04
	UsageZ Usage = 0x1D
	Usage1 Usage = 0x1E
	Usage0 Usage = 0x27

	UsageEnter      Usage = 0x28
	UsageEscape     Usage = 0x29
	UsageBackspace  Usage = 0x2A
	UsageTab        Usage = 0x2B
	UsageSpace      Usage = 0x2C
	UsageMinus      Usage = 0x2D
	UsageEqual      Usage = 0x2E
	UsageLBracket   Usage = 0x2F
	UsageRBracket   Usage = 0x30
	UsageBackslash  Usage = 0x31
	UsageNonUSHash  Usage = 0x32
	UsageSemicolon  Usage = 0x33
	UsageQuote      Usage = 0x34
	UsageGrave      Usage = 0x35
	UsageComma      Usage = 0x36
	UsagePeriod     Usage = 0x37
	UsageSlash      Usage = 0x38
	UsageCapsLock   Usage = 0x39
	UsageF1         Usage = 0x3A
	UsageF12        Usage = 0x45
	UsagePrintScr   Usage = 0x46
	UsageScrollLock Usage = 0x47
	UsagePause      Usage = 0x48
	UsageInsert     Usage = 0x49
	UsageHome       Usage = 0x4A
	UsagePageUp     Usage = 0x4B
	UsageDelete     Usage = 0x4C
	UsageEnd        Usage = 0x4D
	UsagePageDown   Usage = 0x4E
	UsageRight      Usage = 0x4F
	UsageLeft       Usage = 0x50
	UsageDown       Usage = 0x51
	UsageUp         Usage = 0x52
	UsageNonUSSlash Usage = 0x64
	UsageApp        Usage = 0x65

	UsageLCtrl Usage = 0xE0
	UsageRGUI  Usage = 0xE7
)

// Letter returns the usage of a lower-case ASCII letter.
func Letter(c byte) Usage {
	return UsageA + Usage(c-'a')
}

// Modifier is the HID report modifier byte.
type Modifier uint8

// Modifier bits in report order.
const (
	ModLCtrl  Modifier = 1 << 0
	ModLShift Modifier = 1 << 1
	ModLAlt   Modifier = 1 << 2
	ModLGUI   Modifier = 1 << 3
	ModRCtrl  Modifier = 1 << 4
	ModRShift Modifier = 1 << 5
	ModRAlt   Modifier = 1 << 6
	ModRGUI   Modifier = 1 << 7
)

var modifierNames = map[string]Modifier{
	"L_CTRL":  ModLCtrl,
	"L_SHIFT": ModLShift,
	"L_ALT":   ModLAlt,
	"L_GUI":   ModLGUI,
	"R_CTRL":  ModRCtrl,
	"R_SHIFT": ModRShift,
	"R_ALT":   ModRAlt,
	"R_GUI":   ModRGUI,
}

// ParseModifier resolves a modifier name such as "L_SHIFT".
func ParseModifier(name string) (Modifier, bool) {
	m, ok := modifierNames[name]
	return m, ok
}

// Index is a modifier-table index. A contiguous sub-range marks modifier
// keys, the range after it marks layer-select keys, and everything else is a
// plain key.
type Index uint8

// MaxLayers is the number of layers an index can select.
const MaxLayers = 8

// Modifier-table ranges.
const (
	IndexNone    Index = 0
	ModBegin     Index = 1
	ModLayer0    Index = ModBegin + 8
	ModLayerLast Index = ModLayer0 + MaxLayers
)

// IsModifier reports whether the index selects a modifier.
func (i Index) IsModifier() bool {
	return i >= ModBegin && i < ModLayer0
}

// IsLayer reports whether the index selects a layer other than the base layer.
func (i Index) IsLayer() bool {
	return i > ModLayer0 && i < ModLayerLast
}

// ModifierBit returns the report bit of a modifier index.
func (i Index) ModifierBit() Modifier {
	if !i.IsModifier() {
		return 0
	}
	return 1 << (i - ModBegin)
}

// Layer returns the layer selected by a layer index.
func (i Index) Layer() int {
	if !i.IsLayer() {
		return 0
	}
	return int(i - ModLayer0)
}

// LayerIndex returns the index selecting layer n.
func LayerIndex(n int) Index {
	return ModLayer0 + Index(n)
}
