package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"adnw/internal/layout"
	"adnw/internal/sim"
)

// Control characters that end an interactive session. In raw mode the
// terminal no longer turns them into signals.
const (
	ctrlC = 0x03
	ctrlD = 0x04
)

// isTerminal reports whether in is an interactive terminal.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// rawMode switches in to raw mode when it is a terminal. The returned
// function restores the previous state.
func rawMode(in io.Reader) (func(), error) {
	if !isTerminal(in) {
		return func() {}, nil
	}
	fd := int(in.(*os.File).Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	return func() { _ = term.Restore(fd, old) }, nil
}

// readKeys calls fn for every rune read from in until end of input, Ctrl-C
// or Ctrl-D.
func readKeys(ctx context.Context, in io.Reader, fn func(rune) error) error {
	br := bufio.NewReader(in)
	for ctx.Err() == nil {
		r, _, err := br.ReadRune()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if r == ctrlC || r == ctrlD {
			return nil
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// presser closes the contacts for one character at a time against a
// free-running board, holding each chord for hold.
type presser struct {
	m    *sim.Matrix
	lay  func() *layout.Layout
	hold time.Duration
}

func (p *presser) press(ctx context.Context, r rune) error {
	cs, err := sim.Locate(p.lay(), r)
	if err != nil {
		return err
	}
	p.m.Press(cs...)
	if err := sleep(ctx, p.hold); err != nil {
		p.m.Release(cs...)
		return err
	}
	p.m.Release(cs...)
	return sleep(ctx, p.hold)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
