// Package host drives the keyboard pipeline and delivers its reports to the
// host side: a USB HID gadget, a file, or any io.Writer.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"adnw/internal/keyboard"
	"adnw/internal/macro"
)

// DefaultInterval matches a full-speed HID interrupt endpoint polled every 10ms.
const DefaultInterval = 10 * time.Millisecond

// ErrRunning is returned when Run is called on a poller that is already running.
var ErrRunning = errors.New("host: poller already running")

// Source produces one report per poll.
type Source interface {
	ProduceReport() keyboard.Report
}

// Sink delivers a report to the host.
type Sink interface {
	Send(keyboard.Report) error
}

// Recorder receives per-poll accounting.
type Recorder interface {
	Polled(d time.Duration, fromMacro, sent bool)
	SendFailed()
}

type nopRecorder struct{}

func (nopRecorder) Polled(time.Duration, bool, bool) {}
func (nopRecorder) SendFailed()                      {}

// Option configures a Poller.
type Option func(*Poller)

// WithMacros lets player output take precedence over the keyboard while a
// macro is playing.
func WithMacros(p *macro.Player) Option {
	return func(pl *Poller) { pl.player = p }
}

// WithRecorder sets the poll recorder.
func WithRecorder(r Recorder) Option {
	return func(pl *Poller) { pl.rec = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Poller) { pl.logger = l }
}

// WithWriteOnChange suppresses reports identical to the last one sent.
func WithWriteOnChange(on bool) Option {
	return func(pl *Poller) { pl.writeOnChange = on }
}

// WithInterval sets the poll interval used by Run.
func WithInterval(d time.Duration) Option {
	return func(pl *Poller) {
		if d > 0 {
			pl.interval = d
		}
	}
}

// Poller pulls reports from a Source and pushes them to a Sink.
type Poller struct {
	src    Source
	sink   Sink
	player *macro.Player
	rec    Recorder
	logger *slog.Logger

	writeOnChange bool
	interval      time.Duration

	last     keyboard.Report
	haveLast bool
	failing  atomic.Bool
	lastPoll atomic.Int64
	running  atomic.Bool
}

// NewPoller creates a Poller.
func NewPoller(src Source, sink Sink, opts ...Option) *Poller {
	p := &Poller{
		src:      src,
		sink:     sink,
		rec:      nopRecorder{},
		logger:   slog.Default(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the poll interval.
func (p *Poller) Interval() time.Duration { return p.interval }

// LastPoll returns when the most recent cycle started, or the zero time.
func (p *Poller) LastPoll() time.Time {
	n := p.lastPoll.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Failing reports whether the sink rejected the most recent report.
func (p *Poller) Failing() bool { return p.failing.Load() }

// Poll runs one cycle and reports whether a report was sent.
func (p *Poller) Poll() (keyboard.Report, bool, error) {
	start := time.Now()
	p.lastPoll.Store(start.UnixNano())

	var (
		r         keyboard.Report
		fromMacro bool
	)
	if p.player != nil {
		r, fromMacro = p.player.Next()
	}
	if !fromMacro {
		r = p.src.ProduceReport()
	}

	if p.writeOnChange && !fromMacro && p.haveLast && r == p.last {
		p.rec.Polled(time.Since(start), false, false)
		return r, false, nil
	}

	if err := p.sink.Send(r); err != nil {
		p.rec.SendFailed()
		if !p.failing.Swap(true) {
			p.logger.Error("report send failed", "error", err)
		}
		// Forget the last report so it is resent once the sink recovers.
		p.haveLast = false
		return r, false, err
	}
	if p.failing.Swap(false) {
		p.logger.Info("report send recovered")
	}
	p.last = r
	p.haveLast = true
	p.rec.Polled(time.Since(start), fromMacro, true)
	return r, true, nil
}

// Run polls every interval until ctx is cancelled. Send errors are logged
// and counted but do not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer p.running.Store(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("poller started", "interval", p.interval, "write_on_change", p.writeOnChange)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Poll()
		}
	}
}
