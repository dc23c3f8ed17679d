// Package macro plays stored text as a sequence of keyboard reports.
package macro

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"adnw/internal/keyboard"
	"adnw/internal/layout"
)

// MaxLength bounds the number of characters in one macro.
const MaxLength = 4096

var (
	// ErrUntypeable is returned for text containing characters with no key.
	ErrUntypeable = errors.New("character cannot be typed")
	// ErrTooLong is returned for text longer than MaxLength.
	ErrTooLong = errors.New("macro too long")
)

// Macro is a named piece of text.
type Macro struct {
	Name string
	Text string
}

// Compile converts text into reports. Every keystroke report is followed by
// an empty report so that repeated characters register as separate presses.
func Compile(text string) ([]keyboard.Report, error) {
	if utf8.RuneCountInString(text) > MaxLength {
		return nil, ErrTooLong
	}
	out := make([]keyboard.Report, 0, 2*len(text))
	for i, r := range text {
		e, ok := layout.CharKey(r)
		if !ok {
			return nil, fmt.Errorf("%w: %q at offset %d", ErrUntypeable, r, i)
		}
		var rep keyboard.Report
		rep.Mods = e.Mods
		rep.Keys[0] = e.Usage
		out = append(out, rep, keyboard.Report{})
	}
	return out, nil
}

// Player feeds a compiled macro one report per poll. It is safe for
// concurrent use: Play is typically called from a command goroutine while
// the poll loop calls Next.
type Player struct {
	mu    sync.Mutex
	queue []keyboard.Report
	name  string
}

// NewPlayer creates an idle player.
func NewPlayer() *Player {
	return &Player{}
}

// Play replaces any macro in progress with m.
func (p *Player) Play(m Macro) error {
	reps, err := Compile(m.Text)
	if err != nil {
		return fmt.Errorf("macro %s: %w", m.Name, err)
	}
	p.mu.Lock()
	p.queue = reps
	p.name = m.Name
	p.mu.Unlock()
	return nil
}

// Active reports whether a macro is being played.
func (p *Player) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) > 0
}

// Playing returns the name of the macro in progress.
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return ""
	}
	return p.name
}

// Next returns the next report of the macro in progress.
func (p *Player) Next() (keyboard.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return keyboard.Report{}, false
	}
	rep := p.queue[0]
	p.queue = p.queue[1:]
	return rep, true
}

// Cancel stops playback.
func (p *Player) Cancel() {
	p.mu.Lock()
	p.queue = nil
	p.mu.Unlock()
}
