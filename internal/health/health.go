// Package health reports whether a running board is doing its job: the poll
// loop is cycling, the report sink accepts writes and the store answers.
//
// The handlers are mounted next to the metrics endpoint:
//   - /livez  the process is up
//   - /readyz the board finished starting and nothing critical is failing
//   - /healthz every component, with ?full=true
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the health of one component or of the whole board.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check inspects one component.
type Check func(ctx context.Context) CheckResult

// Component is a named check. A failing critical component makes the
// whole board unhealthy; any other failure only degrades it.
type Component struct {
	Name     string
	Critical bool
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout bounds a check that sets no timeout of its own.
const DefaultTimeout = time.Second

// Checker runs the registered checks and keeps their last results.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	started    time.Time
	ready      bool
	now        func() time.Time
}

// NewChecker creates a Checker that is not ready yet.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		started:    time.Now(),
		now:        time.Now,
	}
}

// Register adds a component. Its status is unknown until the first check.
func (c *Checker) Register(comp *Component) {
	if comp.Timeout == 0 {
		comp.Timeout = DefaultTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[comp.Name] = comp
	c.results[comp.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc adds a component built from a check function.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady marks the end of start-up.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

// IsReady reports whether start-up finished.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs every check concurrently and returns the results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	comps := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		comps = append(comps, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(comps))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, comp := range comps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := c.run(ctx, comp)
			mu.Lock()
			results[comp.Name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	c.mu.Lock()
	for name, res := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = res
		}
	}
	c.mu.Unlock()
	return results
}

// run executes one check under its timeout. A panic or a timeout is an
// unhealthy result.
func (c *Checker) run(ctx context.Context, comp *Component) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := c.now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- CheckResult{Status: StatusUnhealthy, Message: "check panicked", Error: fmt.Sprint(v)}
			}
		}()
		done <- comp.Check(ctx)
	}()

	var res CheckResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = CheckResult{Status: StatusUnhealthy, Message: "check timed out", Error: ctx.Err().Error()}
	}
	res.LastChecked = start
	res.Duration = c.now().Sub(start)
	return res
}

// OverallStatus folds the last results into one status.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	unknown, degraded := false, false
	for name, res := range c.results {
		comp := c.components[name]
		switch res.Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			degraded = true
		case StatusDegraded:
			degraded = true
		case StatusUnknown:
			if comp.Critical {
				unknown = true
			}
		}
	}
	switch {
	case unknown:
		return StatusUnknown
	case degraded:
		return StatusDegraded
	}
	return StatusHealthy
}

// Response is the body of /healthz.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components,omitempty"`
	Failing    []string               `json:"failing,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs the checks and builds a response. Components are included
// only when full is set.
func (c *Checker) Report(ctx context.Context, full bool) Response {
	results := c.Check(ctx)

	var failing []string
	for name, res := range results {
		if res.Status != StatusHealthy {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)

	resp := Response{
		Status:    c.OverallStatus(),
		Ready:     c.IsReady(),
		Uptime:    c.now().Sub(c.started).Round(time.Second).String(),
		Failing:   failing,
		Timestamp: c.now(),
	}
	if full {
		resp.Components = results
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// LivenessHandler answers as long as the process serves HTTP.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": c.now()})
	})
}

// ReadinessHandler answers 503 until the board is ready and while a
// critical component fails.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "starting", "ready": false})
			return
		}
		resp := c.Report(r.Context(), false)
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": resp.Status, "ready": true, "failing": resp.Failing})
	})
}

// HealthHandler serves the full report. Degraded is still 200.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Report(r.Context(), r.URL.Query().Get("full") == "true")
		code := http.StatusOK
		if resp.Status == StatusUnhealthy || resp.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// Routes returns the handlers keyed by path.
func (c *Checker) Routes() map[string]http.Handler {
	return map[string]http.Handler{
		"/livez":   c.LivenessHandler(),
		"/readyz":  c.ReadinessHandler(),
		"/healthz": c.HealthHandler(),
	}
}

// PollCheck fails when the poll loop has not completed a cycle within
// stale. last returns the time of the most recent cycle.
func PollCheck(last func() time.Time, stale time.Duration) Check {
	return func(context.Context) CheckResult {
		t := last()
		if t.IsZero() {
			return CheckResult{Status: StatusUnknown, Message: "no poll yet"}
		}
		age := time.Since(t)
		details := map[string]any{"last_poll": t, "age_ms": age.Milliseconds()}
		if age > stale {
			return CheckResult{Status: StatusUnhealthy, Message: "poll loop stalled", Details: details}
		}
		return CheckResult{Status: StatusHealthy, Message: "polling", Details: details}
	}
}

// SinkCheck degrades while the report sink rejects writes.
func SinkCheck(failing func() bool) Check {
	return func(context.Context) CheckResult {
		if failing() {
			return CheckResult{Status: StatusDegraded, Message: "report sink rejects writes"}
		}
		return CheckResult{Status: StatusHealthy, Message: "report sink ok"}
	}
}

// PingCheck wraps a connectivity probe such as a database ping.
func PingCheck(what string, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: what + " unreachable", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: what + " ok"}
	}
}
