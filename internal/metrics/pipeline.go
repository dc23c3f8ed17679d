package metrics

import (
	"time"

	"adnw/internal/keyboard"
)

// Pipeline holds the keyboard and poll-loop metrics. It implements
// keyboard.Observer and host.Recorder.
type Pipeline struct {
	registry *Registry

	Polls           *Counter
	ReportsSent     *Counter
	ReportsSuppress *Counter
	MacroReports    *Counter
	SendErrors      *Counter

	ActiveOverflow *Counter
	ReportOverflow *Counter
	LayerConflict  *Counter

	LayoutReloads *Counter
	MouseMode     *Gauge
	PollDuration  *Histogram
}

// NewPipeline registers the pipeline metrics in r.
func NewPipeline(r *Registry) *Pipeline {
	return &Pipeline{
		registry:        r,
		Polls:           r.Counter("polls_total", "Poll cycles run"),
		ReportsSent:     r.Counter("reports_sent_total", "Reports written to the host"),
		ReportsSuppress: r.Counter("reports_suppressed_total", "Reports skipped because nothing changed"),
		MacroReports:    r.Counter("macro_reports_total", "Reports produced by macro playback"),
		SendErrors:      r.Counter("send_errors_total", "Failed report writes"),
		ActiveOverflow:  r.Counter("active_overflow_total", "Cycles with more held keys than the active-key list holds"),
		ReportOverflow:  r.Counter("report_overflow_total", "Cycles with more plain keys than the report holds"),
		LayerConflict:   r.Counter("layer_conflict_total", "Cycles with more than one layer key held"),
		LayoutReloads:   r.Counter("layout_reloads_total", "Layout tables swapped in at runtime"),
		MouseMode:       r.Gauge("mouse_mode", "1 while pointer emulation is on"),
		PollDuration:    r.Histogram("poll_duration_seconds", "Time spent producing and sending one report", PollBuckets),
	}
}

// Registry returns the backing registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Observe implements keyboard.Observer.
func (p *Pipeline) Observe(s keyboard.Signal) {
	if s&keyboard.SignalActiveOverflow != 0 {
		p.ActiveOverflow.Inc()
	}
	if s&keyboard.SignalReportOverflow != 0 {
		p.ReportOverflow.Inc()
	}
	if s&keyboard.SignalLayerConflict != 0 {
		p.LayerConflict.Inc()
	}
}

// Signals returns the per-signal counts, keyed by signal name.
func (p *Pipeline) Signals() map[string]uint64 {
	return map[string]uint64{
		keyboard.SignalActiveOverflow.String(): p.ActiveOverflow.Value(),
		keyboard.SignalReportOverflow.String(): p.ReportOverflow.Value(),
		keyboard.SignalLayerConflict.String():  p.LayerConflict.Value(),
	}
}

// Polled implements host.Recorder.
func (p *Pipeline) Polled(d time.Duration, fromMacro, sent bool) {
	p.Polls.Inc()
	p.PollDuration.ObserveDuration(d)
	if fromMacro {
		p.MacroReports.Inc()
	}
	if sent {
		p.ReportsSent.Inc()
	} else {
		p.ReportsSuppress.Inc()
	}
}

// SendFailed implements host.Recorder.
func (p *Pipeline) SendFailed() { p.SendErrors.Inc() }

// SetMouseMode records the pointer emulation state.
func (p *Pipeline) SetMouseMode(on bool) {
	if on {
		p.MouseMode.Set(1)
	} else {
		p.MouseMode.Set(0)
	}
}
