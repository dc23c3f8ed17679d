package layout

import (
	_ "embed"
	"sync"
)

//go:embed adnw.yaml
var defaultYAML []byte

var (
	defaultOnce   sync.Once
	defaultLayout *Layout
)

// Default returns the built-in AdNW layout.
func Default() *Layout {
	defaultOnce.Do(func() {
		l, err := Parse(defaultYAML, FormatYAML)
		if err != nil {
			panic("layout: built-in table: " + err.Error())
		}
		defaultLayout = l
	})
	return defaultLayout
}

// DefaultSource returns the built-in layout in its YAML form.
func DefaultSource() []byte {
	return append([]byte(nil), defaultYAML...)
}
