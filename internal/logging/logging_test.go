package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"ERROR", LevelError, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	for _, lvl := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		got, err := ParseLevel(LevelString(lvl))
		if err != nil || got != lvl {
			t.Errorf("round trip of %v gave %v, %v", lvl, got, err)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if cfg.Component != "adnw" {
		t.Errorf("expected component adnw, got %s", cfg.Component)
	}
	if !strings.Contains(cfg.FilePath, "adnw") {
		t.Errorf("log path should contain adnw: %s", cfg.FilePath)
	}
}

func newBufferLogger(t *testing.T, format Format) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = format
	cfg.Level = LevelDebug
	cfg.Writer = &buf
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	return l, &buf
}

func TestJSONFormat(t *testing.T) {
	l, buf := newBufferLogger(t, FormatJSON)
	l.WithComponent("keyboard").Warn("keyboard condition", "signal", "layer-conflict")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "keyboard condition" {
		t.Errorf("unexpected msg %v", entry["msg"])
	}
	if entry["signal"] != "layer-conflict" {
		t.Errorf("unexpected signal %v", entry["signal"])
	}
	if entry["component"] != "keyboard" {
		t.Errorf("unexpected component %v", entry["component"])
	}
}

func TestRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, FormatText)
	l.Info("unlock", "passphrase", "hunter2", "vault_salt", "abcd", "row", 3)

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "abcd") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "row=3") {
		t.Errorf("plain attribute missing: %s", out)
	}
}

func TestShouldRedact(t *testing.T) {
	for key, want := range map[string]bool{
		"passphrase":  true,
		"Master_Key":  true,
		"tabula_line": true,
		"keys":        false,
		"signal":      false,
	} {
		if got := shouldRedact(key); got != want {
			t.Errorf("shouldRedact(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "adnw.log")
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = path

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	l.Info("poller started")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "poller started") {
		t.Errorf("log file missing entry: %s", data)
	}
}

// =============================================================================
// Rotation
// =============================================================================

func TestFileRotatorSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adnw.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer r.Close()

	line := bytes.Repeat([]byte("x"), 400*1024)
	for i := 0; i < 3; i++ {
		if _, err := r.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	files := r.Files()
	if len(files) != 2 {
		t.Fatalf("expected current plus one rotated file, got %v", files)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current: %v", err)
	}
	if info.Size() != int64(len(line)) {
		t.Errorf("current file holds %d bytes, want %d", info.Size(), len(line))
	}
}

func TestFileRotatorDayChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adnw.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 10, MaxBackups: 5, Compress: true})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer r.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.Local)
	r.now = func() time.Time { return day }
	r.opened = day

	r.Write([]byte("before midnight\n"))
	day = day.Add(2 * time.Minute)
	r.Write([]byte("after midnight\n"))

	gz, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "adnw-*.log.gz"))
	if len(gz) != 1 {
		t.Fatalf("expected one compressed rotation, got %v", gz)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "after midnight\n" {
		t.Errorf("current file = %q", data)
	}
}

func TestFileRotatorPrunesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adnw.log")
	r, err := NewFileRotator(&Config{FilePath: path, MaxSize: 10, MaxBackups: 2})
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer r.Close()

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	r.now = func() time.Time { return clock }
	for i := 0; i < 5; i++ {
		r.Write([]byte("line\n"))
		clock = clock.Add(time.Second)
		if err := r.Rotate(); err != nil {
			t.Fatalf("rotate: %v", err)
		}
	}
	if got := len(r.Files()); got != 3 {
		t.Errorf("expected current plus 2 backups, got %d", got)
	}
}

// =============================================================================
// Crash handling
// =============================================================================

func TestCrashHandlerGuard(t *testing.T) {
	dir := t.TempDir()
	l, buf := newBufferLogger(t, FormatText)
	h := NewCrashHandler(dir, "1.2.3", l)
	h.SetSession("s-1")

	err := h.Guard(map[string]string{"mkt": "init"}, func() error {
		panic("scan row out of range")
	})
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	if !strings.Contains(buf.String(), "recovered panic") {
		t.Errorf("panic not logged: %s", buf.String())
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	rep := reports[0]
	if rep.PanicValue != "scan row out of range" || rep.Version != "1.2.3" || rep.Session != "s-1" {
		t.Errorf("unexpected report %+v", rep)
	}
	if rep.Context["mkt"] != "init" {
		t.Errorf("context lost: %v", rep.Context)
	}

	if err := h.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if reports, _ := h.Reports(); len(reports) != 0 {
		t.Error("reports were not cleared")
	}
}

func TestCrashHandlerPassesErrors(t *testing.T) {
	h := NewCrashHandler(t.TempDir(), "dev", nil)
	want := errors.New("sink closed")
	if err := h.Guard(nil, func() error { return want }); err != want {
		t.Errorf("expected passthrough error, got %v", err)
	}
	if err := h.Guard(nil, func() error { return nil }); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
