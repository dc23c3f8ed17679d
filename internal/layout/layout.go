package layout

import (
	"errors"
	"fmt"
	"strings"
)

// Layout is an immutable layout table. It is safe for concurrent use.
type Layout struct {
	name   string
	rows   int
	cols   int
	names  []string
	layers [][]Entry
	taps   []Usage
}

// Name returns the layout name.
func (l *Layout) Name() string { return l.name }

// Rows returns the number of matrix rows covered.
func (l *Layout) Rows() int { return l.rows }

// Cols returns the number of matrix columns covered.
func (l *Layout) Cols() int { return l.cols }

// Layers returns the number of layers.
func (l *Layout) Layers() int { return len(l.layers) }

// LayerName returns the name of layer n.
func (l *Layout) LayerName(n int) string {
	if n < 0 || n >= len(l.names) {
		return ""
	}
	return l.names[n]
}

// Lookup returns the entry at (layer, row, col). Cells outside the table
// and layers that do not exist yield the no-op entry.
func (l *Layout) Lookup(layer, row, col int) Entry {
	if layer < 0 || layer >= len(l.layers) || !l.inside(row, col) {
		return Entry{}
	}
	return l.layers[layer][row*l.cols+col]
}

// Classify returns the role of a key, determined at the base layer.
func (l *Layout) Classify(row, col int) Class {
	return l.Lookup(0, row, col).Class()
}

// Tap returns the keycode a modifier-or-layer key emits when tapped, or
// UsageNone if the key has no tap meaning.
func (l *Layout) Tap(row, col int) Usage {
	if !l.inside(row, col) {
		return UsageNone
	}
	return l.taps[row*l.cols+col]
}

func (l *Layout) inside(row, col int) bool {
	return row >= 0 && row < l.rows && col >= 0 && col < l.cols
}

// Document returns the serializable form of the layout.
func (l *Layout) Document() *Document {
	doc := &Document{Name: l.name, Rows: l.rows, Cols: l.cols}
	for n, cells := range l.layers {
		ld := LayerDoc{Name: l.names[n], Keys: make([][]string, l.rows)}
		for r := 0; r < l.rows; r++ {
			ld.Keys[r] = make([]string, l.cols)
			for c := 0; c < l.cols; c++ {
				ld.Keys[r][c] = cells[r*l.cols+c].String()
			}
		}
		doc.Layers = append(doc.Layers, ld)
	}
	for i, u := range l.taps {
		if u == UsageNone {
			continue
		}
		doc.Taps = append(doc.Taps, TapDoc{
			Row: i / l.cols,
			Col: i % l.cols,
			Key: Entry{Usage: u}.String(),
		})
	}
	return doc
}

// BuildError collects every problem found while building a layout.
type BuildError []string

func (e BuildError) Error() string {
	return "layout: " + strings.Join(e, "; ")
}

// ErrInvalid is matched by every BuildError.
var ErrInvalid = errors.New("invalid layout")

// Is makes BuildError match ErrInvalid.
func (e BuildError) Is(target error) bool { return target == ErrInvalid }

// Build validates a document and turns it into a layout.
func Build(doc *Document) (*Layout, error) {
	var errs BuildError
	if doc.Rows <= 0 || doc.Cols <= 0 || doc.Cols > 32 {
		errs = append(errs, fmt.Sprintf("bad dimensions %dx%d", doc.Rows, doc.Cols))
		return nil, errs
	}
	if len(doc.Layers) == 0 {
		errs = append(errs, "no layers")
		return nil, errs
	}
	if len(doc.Layers) > MaxLayers {
		errs = append(errs, fmt.Sprintf("%d layers, at most %d allowed", len(doc.Layers), MaxLayers))
		return nil, errs
	}

	l := &Layout{
		name: doc.Name,
		rows: doc.Rows,
		cols: doc.Cols,
		taps: make([]Usage, doc.Rows*doc.Cols),
	}
	for n, ld := range doc.Layers {
		name := ld.Name
		if name == "" {
			name = fmt.Sprintf("layer%d", n)
		}
		l.names = append(l.names, name)
		cells := make([]Entry, doc.Rows*doc.Cols)
		if len(ld.Keys) != doc.Rows {
			errs = append(errs, fmt.Sprintf("layer %s: %d rows, want %d", name, len(ld.Keys), doc.Rows))
		}
		for r, row := range ld.Keys {
			if r >= doc.Rows {
				break
			}
			if len(row) != doc.Cols {
				errs = append(errs, fmt.Sprintf("layer %s row %d: %d columns, want %d", name, r, len(row), doc.Cols))
			}
			for c, tok := range row {
				if c >= doc.Cols {
					break
				}
				e, err := ParseKey(tok)
				if err != nil {
					errs = append(errs, fmt.Sprintf("layer %s [%d,%d]: %v", name, r, c, err))
					continue
				}
				if e.Index.IsLayer() && e.Index.Layer() >= len(doc.Layers) {
					errs = append(errs, fmt.Sprintf("layer %s [%d,%d]: %s selects missing layer", name, r, c, tok))
				}
				cells[r*doc.Cols+c] = e
			}
		}
		l.layers = append(l.layers, cells)
	}

	for _, t := range doc.Taps {
		if t.Row < 0 || t.Row >= doc.Rows || t.Col < 0 || t.Col >= doc.Cols {
			errs = append(errs, fmt.Sprintf("tap [%d,%d]: outside matrix", t.Row, t.Col))
			continue
		}
		e, err := ParseKey(t.Key)
		if err != nil {
			errs = append(errs, fmt.Sprintf("tap [%d,%d]: %v", t.Row, t.Col, err))
			continue
		}
		if e.Mods != 0 || e.Index != IndexNone {
			errs = append(errs, fmt.Sprintf("tap [%d,%d]: %s is not a plain keycode", t.Row, t.Col, t.Key))
			continue
		}
		if l.Classify(t.Row, t.Col) == ClassPlain {
			errs = append(errs, fmt.Sprintf("tap [%d,%d]: key is not a modifier or layer key", t.Row, t.Col))
			continue
		}
		l.taps[t.Row*doc.Cols+t.Col] = e.Usage
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return l, nil
}
