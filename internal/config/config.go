// Package config handles configuration loading, validation and hot reload
// for adnw.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"adnw/internal/analog"
	"adnw/internal/host"
	"adnw/internal/keyboard"
	"adnw/internal/layout"
	"adnw/internal/logging"
	"adnw/internal/matrix"
	"adnw/internal/tick"
	"adnw/internal/vault"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete configuration.
type Config struct {
	Version int `toml:"version" json:"version" yaml:"version"`

	Matrix    MatrixConfig    `toml:"matrix" json:"matrix" yaml:"matrix"`
	Timing    TimingConfig    `toml:"timing" json:"timing" yaml:"timing"`
	Keyboard  KeyboardConfig  `toml:"keyboard" json:"keyboard" yaml:"keyboard"`
	Mouse     MouseConfig     `toml:"mouse" json:"mouse" yaml:"mouse"`
	Analog    AnalogConfig    `toml:"analog" json:"analog" yaml:"analog"`
	Layout    LayoutConfig    `toml:"layout" json:"layout" yaml:"layout"`
	Storage   StorageConfig   `toml:"storage" json:"storage" yaml:"storage"`
	Vault     vault.Params    `toml:"vault" json:"vault" yaml:"vault"`
	Transport TransportConfig `toml:"transport" json:"transport" yaml:"transport"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" json:"metrics" yaml:"metrics"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// MatrixConfig describes the key matrix.
type MatrixConfig struct {
	Rows         int `toml:"rows" json:"rows" yaml:"rows"`
	Cols         int `toml:"cols" json:"cols" yaml:"cols"`
	DebounceBits int `toml:"debounce_bits" json:"debounce_bits" yaml:"debounce_bits"`

	// RepeatStart and RepeatNext are in ticks.
	RepeatStart uint32 `toml:"repeat_start" json:"repeat_start" yaml:"repeat_start"`
	RepeatNext  uint32 `toml:"repeat_next" json:"repeat_next" yaml:"repeat_next"`

	// RepeatColumns lists the columns that auto-repeat. Empty means all.
	RepeatColumns []int `toml:"repeat_columns" json:"repeat_columns" yaml:"repeat_columns"`
}

// TimingConfig holds the time base settings.
type TimingConfig struct {
	TickHz         int    `toml:"tick_hz" json:"tick_hz" yaml:"tick_hz"`
	PollIntervalMs int    `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
	MKTTimeout     uint32 `toml:"mkt_timeout" json:"mkt_timeout" yaml:"mkt_timeout"`
}

// KeyboardConfig sizes the pipeline buffers.
type KeyboardConfig struct {
	ActiveCapacity int  `toml:"active_capacity" json:"active_capacity" yaml:"active_capacity"`
	ReportCapacity int  `toml:"report_capacity" json:"report_capacity" yaml:"report_capacity"`
	MKTEnabled     bool `toml:"mkt_enabled" json:"mkt_enabled" yaml:"mkt_enabled"`
}

// Position is a matrix coordinate.
type Position struct {
	Row int `toml:"row" json:"row" yaml:"row"`
	Col int `toml:"col" json:"col" yaml:"col"`
}

// ButtonConfig maps a key to a mouse button bit.
type ButtonConfig struct {
	Row    int   `toml:"row" json:"row" yaml:"row"`
	Col    int   `toml:"col" json:"col" yaml:"col"`
	Button uint8 `toml:"button" json:"button" yaml:"button"`
}

// MouseConfig configures pointer emulation.
type MouseConfig struct {
	Enabled bool           `toml:"enabled" json:"enabled" yaml:"enabled"`
	Toggle  Position       `toml:"toggle" json:"toggle" yaml:"toggle"`
	Layer   int            `toml:"layer" json:"layer" yaml:"layer"`
	Buttons []ButtonConfig `toml:"buttons" json:"buttons" yaml:"buttons"`
}

// AnalogConfig maps pointing-stick deflection to hints.
type AnalogConfig struct {
	Threshold      int    `toml:"threshold" json:"threshold" yaml:"threshold"`
	LayerPositiveX int    `toml:"layer_positive_x" json:"layer_positive_x" yaml:"layer_positive_x"`
	LayerNegativeX int    `toml:"layer_negative_x" json:"layer_negative_x" yaml:"layer_negative_x"`
	ModsPositiveY  string `toml:"mods_positive_y" json:"mods_positive_y" yaml:"mods_positive_y"`
	ModsNegativeY  string `toml:"mods_negative_y" json:"mods_negative_y" yaml:"mods_negative_y"`
}

// LayoutConfig selects the layout table.
type LayoutConfig struct {
	// Path is a YAML, TOML or JSON layout file. Empty selects the built-in
	// table.
	Path  string `toml:"path" json:"path" yaml:"path"`
	Watch bool   `toml:"watch" json:"watch" yaml:"watch"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path string `toml:"path" json:"path" yaml:"path"`
}

// TransportConfig selects where reports go.
type TransportConfig struct {
	Device        string `toml:"device" json:"device" yaml:"device"`
	WriteOnChange bool   `toml:"write_on_change" json:"write_on_change" yaml:"write_on_change"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
}

// MetricsConfig exposes the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns the configuration of the stock board.
func DefaultConfig() *Config {
	kb := keyboard.DefaultConfig()
	buttons := make([]ButtonConfig, len(kb.MouseButtons))
	for i, b := range kb.MouseButtons {
		buttons[i] = ButtonConfig{Row: int(b.Row), Col: int(b.Col), Button: b.Button}
	}

	return &Config{
		Version: Version,
		Matrix: MatrixConfig{
			Rows:         8,
			Cols:         6,
			DebounceBits: matrix.DefaultDebounceBits,
			RepeatStart:  matrix.DefaultRepeatStart,
			RepeatNext:   matrix.DefaultRepeatNext,
		},
		Timing: TimingConfig{
			TickHz:         tick.DefaultRate,
			PollIntervalMs: int(host.DefaultInterval / time.Millisecond),
			MKTTimeout:     keyboard.DefaultMKTTimeout,
		},
		Keyboard: KeyboardConfig{
			ActiveCapacity: keyboard.DefaultActiveCapacity,
			ReportCapacity: keyboard.MaxReportKeys,
			MKTEnabled:     true,
		},
		Mouse: MouseConfig{
			Enabled: true,
			Toggle:  Position{Row: int(kb.MouseToggle.Row), Col: int(kb.MouseToggle.Col)},
			Layer:   kb.MouseLayer,
			Buttons: buttons,
		},
		Analog: AnalogConfig{
			Threshold:      1,
			LayerPositiveX: 3,
			LayerNegativeX: 2,
			ModsPositiveY:  "L_SHIFT",
			ModsNegativeY:  "L_CTRL",
		},
		Layout: LayoutConfig{Watch: true},
		Storage: StorageConfig{
			Path: filepath.Join(DataDir(), "adnw.db"),
		},
		Vault: vault.DefaultParams(),
		Transport: TransportConfig{
			Device:        "/dev/hidg0",
			WriteOnChange: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   logging.DefaultLogPath(),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9617",
		},
	}
}

// DataDir returns the adnw data directory, overridable with ADNW_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv("ADNW_DATA_DIR"); dir != "" {
		return dir
	}
	return PlatformDataDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	if found := FindConfigFile(); found != "" {
		return found
	}
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path. A missing file yields the defaults.
// The decoder is chosen by extension, falling back to auto-detection.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{filepath.Dir(c.Storage.Path), filepath.Dir(c.Logging.FilePath)} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies ADNW_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("ADNW_LAYOUT"); v != "" {
		c.Layout.Path = v
	}
	if v := os.Getenv("ADNW_DEVICE"); v != "" {
		c.Transport.Device = v
	}
	if v := os.Getenv("ADNW_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("ADNW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ADNW_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("ADNW_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
		c.Metrics.Enabled = true
	}
	if v := os.Getenv("ADNW_DEBOUNCE_BITS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Matrix.DebounceBits = n
		}
	}
	if v := os.Getenv("ADNW_MKT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Keyboard.MKTEnabled = b
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:   c.Version,
		Matrix:    c.Matrix,
		Timing:    c.Timing,
		Keyboard:  c.Keyboard,
		Mouse:     c.Mouse,
		Analog:    c.Analog,
		Layout:    c.Layout,
		Storage:   c.Storage,
		Vault:     c.Vault,
		Transport: c.Transport,
		Logging:   c.Logging,
		Metrics:   c.Metrics,
	}
	clone.Matrix.RepeatColumns = append([]int(nil), c.Matrix.RepeatColumns...)
	clone.Mouse.Buttons = append([]ButtonConfig(nil), c.Mouse.Buttons...)
	return clone
}

// MatrixSettings converts the matrix section.
func (c *Config) MatrixSettings() matrix.Config {
	mask := matrix.ColumnMask(c.Matrix.Cols)
	if len(c.Matrix.RepeatColumns) > 0 {
		mask = 0
		for _, col := range c.Matrix.RepeatColumns {
			mask |= matrix.Bit(col)
		}
	}
	return matrix.Config{
		Rows:         c.Matrix.Rows,
		Cols:         c.Matrix.Cols,
		DebounceBits: c.Matrix.DebounceBits,
		RepeatMask:   mask,
		RepeatStart:  c.Matrix.RepeatStart,
		RepeatNext:   c.Matrix.RepeatNext,
	}
}

// KeyboardSettings converts the keyboard and mouse sections.
func (c *Config) KeyboardSettings() keyboard.Config {
	buttons := make([]keyboard.MouseButton, len(c.Mouse.Buttons))
	for i, b := range c.Mouse.Buttons {
		buttons[i] = keyboard.MouseButton{
			Coord:  matrix.Coord{Row: uint8(b.Row), Col: uint8(b.Col)},
			Button: b.Button,
		}
	}
	return keyboard.Config{
		ActiveCapacity:     c.Keyboard.ActiveCapacity,
		ReportCapacity:     c.Keyboard.ReportCapacity,
		MKTEnabled:         c.Keyboard.MKTEnabled,
		MKTTimeout:         c.Timing.MKTTimeout,
		MouseToggleEnabled: c.Mouse.Enabled,
		MouseToggle:        matrix.Coord{Row: uint8(c.Mouse.Toggle.Row), Col: uint8(c.Mouse.Toggle.Col)},
		MouseLayer:         c.Mouse.Layer,
		MouseButtons:       buttons,
	}
}

// AnalogSettings converts the analog section. Names were checked by
// Validate; an unknown name maps to no modifier.
func (c *Config) AnalogSettings() analog.Config {
	pos, _ := layout.ParseModifier(strings.ToUpper(c.Analog.ModsPositiveY))
	neg, _ := layout.ParseModifier(strings.ToUpper(c.Analog.ModsNegativeY))
	return analog.Config{
		Threshold:      c.Analog.Threshold,
		LayerPositiveX: c.Analog.LayerPositiveX,
		LayerNegativeX: c.Analog.LayerNegativeX,
		ModsPositiveY:  pos,
		ModsNegativeY:  neg,
	}
}

// PollInterval returns the host poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalMs) * time.Millisecond
}

// LoggingSettings converts the logging section.
func (c *Config) LoggingSettings() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = c.Logging.MaxSizeMB
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	return lc, nil
}
