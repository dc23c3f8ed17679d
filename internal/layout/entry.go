package layout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownKey is returned for a key token that names nothing.
var ErrUnknownKey = errors.New("unknown key")

// Entry is one cell of the layout table.
type Entry struct {
	Usage Usage
	Mods  Modifier
	Index Index
}

// Class is the role of a key at the base layer.
type Class int

const (
	ClassPlain Class = iota
	ClassModifier
	ClassLayer
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassModifier:
		return "modifier"
	case ClassLayer:
		return "layer"
	default:
		return "plain"
	}
}

// Class classifies the entry by its modifier-table index.
func (e Entry) Class() Class {
	switch {
	case e.Index.IsModifier():
		return ClassModifier
	case e.Index.IsLayer():
		return ClassLayer
	default:
		return ClassPlain
	}
}

// IsNoop reports whether the entry produces nothing.
func (e Entry) IsNoop() bool {
	return e == Entry{}
}

// named maps layout tokens to entries.
var named = map[string]Entry{}

// tokenOf is the preferred token for an entry, used when dumping layouts.
var tokenOf = map[Entry]string{}

func define(token string, e Entry) {
	named[token] = e
	if _, ok := tokenOf[e]; !ok {
		tokenOf[e] = token
	}
}

func init() {
	define("no", Entry{})
	define("_", Entry{})

	for c := byte('a'); c <= 'z'; c++ {
		define(string(c), Entry{Usage: Letter(c)})
		define(strings.ToUpper(string(c)), Entry{Usage: Letter(c), Mods: ModLShift})
	}
	define("0", Entry{Usage: Usage0})
	for d := byte('1'); d <= '9'; d++ {
		define(string(d), Entry{Usage: Usage1 + Usage(d-'1')})
	}
	for n := 1; n <= 12; n++ {
		define("F"+strconv.Itoa(n), Entry{Usage: UsageF1 + Usage(n-1)})
	}

	plain := []struct {
		token string
		usage Usage
	}{
		{"ENTER", UsageEnter}, {"ESC", UsageEscape}, {"BSPACE", UsageBackspace},
		{"TAB", UsageTab}, {"SPACE", UsageSpace}, {"MINUS", UsageMinus},
		{"EQUAL", UsageEqual}, {"L_BRACKET", UsageLBracket}, {"R_BRACKET", UsageRBracket},
		{"BSLASH", UsageBackslash}, {"SCOLON", UsageSemicolon}, {"SQUOTE", UsageQuote},
		{"GRAVE", UsageGrave}, {"COMMA", UsageComma}, {"PERIOD", UsagePeriod},
		{"SLASH", UsageSlash}, {"CAPS", UsageCapsLock}, {"PSCREEN", UsagePrintScr},
		{"SCROLLLOCK", UsageScrollLock}, {"PAUSE", UsagePause}, {"INS", UsageInsert},
		{"HOME", UsageHome}, {"PGUP", UsagePageUp}, {"DEL", UsageDelete},
		{"END", UsageEnd}, {"PGDN", UsagePageDown}, {"RIGHT", UsageRight},
		{"LEFT", UsageLeft}, {"DOWN", UsageDown}, {"UP", UsageUp}, {"APP", UsageApp},
		// positions of the German umlauts and sharp s on a DE host layout
		{"SSHARP", UsageMinus}, {"U_UML", UsageLBracket}, {"O_UML", UsageSemicolon},
		{"A_UML", UsageQuote},
	}
	for _, p := range plain {
		define(p.token, Entry{Usage: p.usage})
	}

	shifted := []struct {
		token string
		usage Usage
	}{
		{"EXCLAM", Usage1}, {"AT", Usage1 + 1}, {"HASH", Usage1 + 2}, {"DOLLAR", Usage1 + 3},
		{"PERCENT", Usage1 + 4}, {"CARET", Usage1 + 5}, {"AMPERSAND", Usage1 + 6},
		{"ASTERIX", Usage1 + 7}, {"L_PAREN", Usage1 + 8}, {"R_PAREN", Usage0},
		{"USCORE", UsageMinus}, {"PLUS", UsageEqual}, {"L_BRACE", UsageLBracket},
		{"R_BRACE", UsageRBracket}, {"BAR", UsageBackslash}, {"COLON", UsageSemicolon},
		{"DQUOTE", UsageQuote}, {"TILDE", UsageGrave}, {"LESS", UsageComma},
		{"GREATER", UsagePeriod}, {"QUESTION", UsageSlash},
	}
	for _, s := range shifted {
		define(s.token, Entry{Usage: s.usage, Mods: ModLShift})
	}

	mods := []string{"L_CTRL", "L_SHIFT", "L_ALT", "L_GUI", "R_CTRL", "R_SHIFT", "R_ALT", "R_GUI"}
	for i, m := range mods {
		define(m, Entry{Usage: UsageLCtrl + Usage(i), Index: ModBegin + Index(i)})
	}

	for n := 1; n < MaxLayers; n++ {
		define("LAYER_"+strconv.Itoa(n), Entry{Index: LayerIndex(n)})
	}
	define("MOD_1", Entry{Index: LayerIndex(1)})
	define("MOD_2", Entry{Index: LayerIndex(2)})
	define("MOD_3", Entry{Index: LayerIndex(3)})
	define("MOUSE", Entry{Index: LayerIndex(4)})
	define("COMPOSE", Entry{Index: LayerIndex(5)})
}

// ParseKey resolves a layout token. Besides the named tokens, a single
// printable character is looked up in the US character map.
func ParseKey(token string) (Entry, error) {
	t := strings.TrimSpace(token)
	if e, ok := named[t]; ok {
		return e, nil
	}
	if len(t) == 1 {
		if e, ok := CharKey(rune(t[0])); ok {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKey, token)
}

// String returns the token that produces the entry.
func (e Entry) String() string {
	if t, ok := tokenOf[e]; ok {
		return t
	}
	return fmt.Sprintf("0x%02x/0x%02x/%d", uint8(e.Usage), uint8(e.Mods), e.Index)
}
