package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"adnw/internal/keyboard"
	"adnw/internal/layout"
	"adnw/internal/matrix"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("ADNW_DATA_DIR", t.TempDir())
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if diff := cmp.Diff(keyboard.DefaultConfig(), cfg.KeyboardSettings()); diff != "" {
		t.Errorf("keyboard settings drift (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(matrix.DefaultConfig(), cfg.MatrixSettings()); diff != "" {
		t.Errorf("matrix settings drift (-want +got):\n%s", diff)
	}
	if cfg.PollInterval() != 10*time.Millisecond {
		t.Errorf("expected 10ms poll interval, got %v", cfg.PollInterval())
	}
	if !strings.HasSuffix(cfg.Storage.Path, "adnw.db") {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
}

func TestAnalogSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analog.ModsPositiveY = "r_alt"
	a := cfg.AnalogSettings()
	if a.ModsPositiveY != layout.ModRAlt {
		t.Errorf("expected R_ALT, got %#x", a.ModsPositiveY)
	}
	if a.ModsNegativeY != layout.ModLCtrl {
		t.Errorf("expected L_CTRL, got %#x", a.ModsNegativeY)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Matrix.Rows != 8 || cfg.Matrix.Cols != 6 {
		t.Errorf("expected default 8x6 matrix, got %dx%d", cfg.Matrix.Rows, cfg.Matrix.Cols)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"toml", "config.toml", "[matrix]\ndebounce_bits = 3\nrepeat_columns = [0, 5]\n[keyboard]\nreport_capacity = 4\n"},
		{"yaml", "config.yaml", "matrix:\n  debounce_bits: 3\n  repeat_columns: [0, 5]\nkeyboard:\n  report_capacity: 4\n"},
		{"json", "config.json", `{"matrix": {"debounce_bits": 3, "repeat_columns": [0, 5]}, "keyboard": {"report_capacity": 4}}`},
		{"detect", "adnwrc", "[matrix]\ndebounce_bits = 3\nrepeat_columns = [0, 5]\n[keyboard]\nreport_capacity = 4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			writeFile(t, path, tt.data)

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Matrix.DebounceBits != 3 {
				t.Errorf("expected debounce_bits 3, got %d", cfg.Matrix.DebounceBits)
			}
			if cfg.Keyboard.ReportCapacity != 4 {
				t.Errorf("expected report_capacity 4, got %d", cfg.Keyboard.ReportCapacity)
			}
			if cfg.Matrix.Rows != 8 {
				t.Errorf("unset fields should keep defaults, rows = %d", cfg.Matrix.Rows)
			}
			if got := cfg.MatrixSettings().RepeatMask; got != matrix.Bit(0)|matrix.Bit(5) {
				t.Errorf("unexpected repeat mask %#x", got)
			}
		})
	}
}

func TestLoadGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adnwrc")
	writeFile(t, path, "[matrix\n{{{")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ADNW_LAYOUT", "/etc/adnw/neo.yaml")
	t.Setenv("ADNW_DEVICE", "/dev/hidg1")
	t.Setenv("ADNW_DEBOUNCE_BITS", "1")
	t.Setenv("ADNW_MKT", "false")
	t.Setenv("ADNW_METRICS_LISTEN", ":9999")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Layout.Path != "/etc/adnw/neo.yaml" {
		t.Errorf("layout path not overridden: %s", cfg.Layout.Path)
	}
	if cfg.Transport.Device != "/dev/hidg1" {
		t.Errorf("device not overridden: %s", cfg.Transport.Device)
	}
	if cfg.Matrix.DebounceBits != 1 {
		t.Errorf("debounce bits not overridden: %d", cfg.Matrix.DebounceBits)
	}
	if cfg.Keyboard.MKTEnabled {
		t.Error("MKT should be disabled")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Listen != ":9999" {
		t.Errorf("metrics not overridden: %+v", cfg.Metrics)
	}
}

// =============================================================================
// Validation
// =============================================================================

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Config)
	}{
		{"matrix.debounce_bits", func(c *Config) { c.Matrix.DebounceBits = 5 }},
		{"matrix.cols", func(c *Config) { c.Matrix.Cols = 33 }},
		{"matrix.repeat_columns[0]", func(c *Config) { c.Matrix.RepeatColumns = []int{6} }},
		{"keyboard.report_capacity", func(c *Config) { c.Keyboard.ReportCapacity = 7 }},
		{"timing.mkt_timeout", func(c *Config) { c.Timing.MKTTimeout = 0 }},
		{"mouse.toggle", func(c *Config) { c.Mouse.Toggle = Position{Row: 8, Col: 0} }},
		{"mouse.buttons[0].button", func(c *Config) { c.Mouse.Buttons[0].Button = 0x40 }},
		{"analog.mods_negative_y", func(c *Config) { c.Analog.ModsNegativeY = "hyper" }},
		{"vault.memory_kib", func(c *Config) { c.Vault.Memory = 4 }},
		{"logging.output", func(c *Config) { c.Logging.Output = "syslog" }},
		{"version", func(c *Config) { c.Version = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("no error for %s in %v", tt.field, verrs)
			}
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.Device = ""
	cfg.Metrics.Enabled = true
	cfg.Metrics.Listen = "nope"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("warnings should not fail validation: %v", err)
	}
	warnings := Check(cfg).Warnings()
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", warnings)
	}
}

func TestMouseDisabledSkipsChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mouse.Enabled = false
	cfg.Mouse.Toggle = Position{Row: 99}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled mouse should not be validated: %v", err)
	}
}

// =============================================================================
// Save / Clone
// =============================================================================

func TestSaveRoundTrip(t *testing.T) {
	for _, ext := range SupportedConfigFormats() {
		t.Run(ext, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Matrix.RepeatColumns = []int{1, 2}
			cfg.Transport.Device = "/dev/hidg3"

			path := filepath.Join(t.TempDir(), "sub", "config."+ext)
			if err := Save(cfg, path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if diff := cmp.Diff(cfg, got, cmpopts.IgnoreUnexported(Config{})); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Mouse.Buttons[0].Button = 0x10
	clone.Matrix.Rows = 4
	if cfg.Mouse.Buttons[0].Button == 0x10 || cfg.Matrix.Rows == 4 {
		t.Error("clone shares state with original")
	}
}

// =============================================================================
// Loader
// =============================================================================

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[matrix]\ndebounce_bits = 2\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	l.OnChange(func(old, new *Config) {
		if old.Matrix.DebounceBits == 2 {
			changed <- new
		}
	})
	if err := l.Watch(t.Context()); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer l.Close()

	writeFile(t, path, "[matrix]\ndebounce_bits = 3\n")

	select {
	case cfg := <-changed:
		if cfg.Matrix.DebounceBits != 3 {
			t.Errorf("expected reloaded debounce_bits 3, got %d", cfg.Matrix.DebounceBits)
		}
		if l.Config() != cfg {
			t.Error("loader did not swap in the new config")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
}

func TestReloadRunsCallbacksOutsideLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[matrix]\ndebounce_bits = 2\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var calls, late int
	l.OnChange(func(old, new *Config) {
		calls++
		if l.Config() != new {
			t.Error("callback ran before the new config was visible")
		}
		// registering from inside a callback must not deadlock
		l.OnChange(func(old, new *Config) { late++ })
	})

	writeFile(t, path, "[matrix]\ndebounce_bits = 3\n")
	l.reload()
	if calls != 1 || late != 0 {
		t.Fatalf("first reload: calls=%d late=%d, want 1 and 0", calls, late)
	}

	l.reload()
	if calls != 2 || late != 1 {
		t.Errorf("second reload: calls=%d late=%d, want 2 and 1", calls, late)
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, "[keyboard]\nreport_capacity = 6\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	if err := l.Watch(ctx); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer l.Close()

	writeFile(t, path, "[keyboard]\nreport_capacity = 9\n")

	select {
	case err := <-l.Errors():
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected validation error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload error")
	}
	if l.Config().Keyboard.ReportCapacity != 6 {
		t.Error("invalid config was applied")
	}
}
