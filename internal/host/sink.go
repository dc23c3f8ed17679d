package host

import (
	"fmt"
	"io"
	"os"
	"sync"

	"adnw/internal/keyboard"
)

// WriterSink writes 8-byte boot-protocol reports to an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a WriterSink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Send writes one report.
func (s *WriterSink) Send(r keyboard.Report) error {
	b := r.Bytes()
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.w.Write(b[:])
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if n != len(b) {
		return fmt.Errorf("write report: short write %d of %d bytes", n, len(b))
	}
	return nil
}

// GadgetSink writes reports to a Linux USB gadget HID device such as
// /dev/hidg0.
type GadgetSink struct {
	*WriterSink
	f *os.File
}

// OpenGadget opens the gadget device at path for writing.
func OpenGadget(path string) (*GadgetSink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open gadget %s: %w", path, err)
	}
	return &GadgetSink{WriterSink: NewWriterSink(f), f: f}, nil
}

// Path returns the device path.
func (g *GadgetSink) Path() string { return g.f.Name() }

// Close releases the device.
func (g *GadgetSink) Close() error {
	return g.f.Close()
}

// FuncSink adapts a function to Sink.
type FuncSink func(keyboard.Report) error

// Send calls f(r).
func (f FuncSink) Send(r keyboard.Report) error { return f(r) }
