package main

import (
	"fmt"
	"log/slog"
	"strings"

	"adnw/internal/analog"
	"adnw/internal/config"
	"adnw/internal/keyboard"
	"adnw/internal/layout"
	"adnw/internal/macro"
	"adnw/internal/matrix"
	"adnw/internal/metrics"
	"adnw/internal/sim"
	"adnw/internal/tick"
)

// board is the assembled pipeline. Without scanning hardware the matrix is
// an in-memory one driven from the terminal or from text.
type board struct {
	matrix  *sim.Matrix
	clock   *tick.Source
	pointer *analog.Device
	kb      *keyboard.Keyboard
	metrics *metrics.Pipeline
	macros  *macro.Player
	window  int
}

func loadLayout(cfg *config.Config) (*layout.Layout, error) {
	if cfg.Layout.Path == "" {
		return layout.Default(), nil
	}
	return layout.Load(cfg.Layout.Path)
}

func newBoard(cfg *config.Config, lay *layout.Layout, log *slog.Logger) (*board, error) {
	mc := cfg.MatrixSettings()
	m := sim.NewMatrix(mc.Rows, mc.Cols)
	sc, err := matrix.NewScanner(mc, m)
	if err != nil {
		return nil, err
	}
	b := &board{
		matrix:  m,
		clock:   tick.NewSource(),
		pointer: analog.NewDevice(analog.NewMapper(cfg.AnalogSettings())),
		metrics: metrics.NewPipeline(metrics.NewRegistry("adnw")),
		macros:  macro.NewPlayer(),
		window:  sc.Window(),
	}
	b.kb, err = keyboard.New(cfg.KeyboardSettings(), sc, lay, b.clock,
		keyboard.WithAnalog(b.pointer),
		keyboard.WithObserver(b.metrics),
		keyboard.WithLogger(log.With("component", "keyboard")),
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ProduceReport implements host.Source.
func (b *board) ProduceReport() keyboard.Report {
	rep := b.kb.ProduceReport()
	b.metrics.SetMouseMode(b.kb.MouseMode())
	return rep
}

// step advances the clock by one tick and runs one cycle. It is used when
// nothing else drives the clock.
func (b *board) step() keyboard.Report {
	b.clock.Advance()
	return b.ProduceReport()
}

// typist returns a Typist holding each chord long enough to pass the
// debouncer.
func (b *board) typist() *sim.Typist {
	return sim.NewTypist(b.matrix, b.step, b.window+2)
}

var modifierOrder = []string{"L_CTRL", "L_SHIFT", "L_ALT", "L_GUI", "R_CTRL", "R_SHIFT", "R_ALT", "R_GUI"}

// describe renders a report as hex bytes followed by its modifiers and keys.
func describe(r keyboard.Report) string {
	raw := r.Bytes()
	var sb strings.Builder
	fmt.Fprintf(&sb, "% x", raw[:])
	if r.IsEmpty() {
		sb.WriteString("  (release)")
		return sb.String()
	}
	sb.WriteString(" ")
	for _, name := range modifierOrder {
		if m, _ := layout.ParseModifier(name); r.Mods&m != 0 {
			sb.WriteString(" " + name)
		}
	}
	for _, u := range r.Codes() {
		sb.WriteString(" " + layout.Entry{Usage: u}.String())
	}
	return sb.String()
}
