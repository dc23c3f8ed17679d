package logging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// ErrPanic is returned by Guard when the guarded function panicked.
var ErrPanic = errors.New("recovered panic")

// CrashReport is the JSON dump written for a recovered panic.
type CrashReport struct {
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Session    string            `json:"session,omitempty"`
	GOOS       string            `json:"goos"`
	GOARCH     string            `json:"goarch"`
	Goroutines int               `json:"goroutines"`
	PanicValue string            `json:"panic_value"`
	StackTrace string            `json:"stack_trace"`
	Context    map[string]string `json:"context,omitempty"`
}

// CrashHandler recovers panics in long-running loops and dumps them to a
// directory.
type CrashHandler struct {
	mu      sync.Mutex
	dir     string
	version string
	session string
	logger  *Logger
	seq     int
}

// DefaultCrashDir returns the crash directory next to the default log file.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(DefaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler writing to dir.
func NewCrashHandler(dir, version string, logger *Logger) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	if logger == nil {
		logger = Default()
	}
	return &CrashHandler{dir: dir, version: version, logger: logger}
}

// SetSession tags subsequent reports with a session id.
func (h *CrashHandler) SetSession(id string) {
	h.mu.Lock()
	h.session = id
	h.mu.Unlock()
}

// Guard runs fn. A panic is written to the crash directory, logged and
// returned as an error wrapping ErrPanic.
func (h *CrashHandler) Guard(ctx map[string]string, fn func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			path, werr := h.record(v, ctx)
			if werr != nil {
				h.logger.Error("crash report not written", "error", werr)
			}
			h.logger.Error("recovered panic", "panic", fmt.Sprint(v), "report", path)
			err = fmt.Errorf("%w: %v", ErrPanic, v)
		}
	}()
	return fn()
}

func (h *CrashHandler) record(v any, ctx map[string]string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rep := CrashReport{
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Session:    h.session,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
		PanicValue: fmt.Sprint(v),
		StackTrace: string(debug.Stack()),
		Context:    ctx,
	}
	if err := os.MkdirAll(h.dir, 0o750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	h.seq++
	name := fmt.Sprintf("crash-%s-%03d.json", rep.Timestamp.Format("20060102-150405"), h.seq)
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns the stored reports, newest first. Unreadable files are
// skipped.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	out := make([]CrashReport, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var rep CrashReport
		if json.Unmarshal(data, &rep) == nil {
			out = append(out, rep)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// Clear removes every stored report.
func (h *CrashHandler) Clear() error {
	files, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
