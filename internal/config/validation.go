package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"adnw/internal/keyboard"
	"adnw/internal/layout"
	"adnw/internal/matrix"
)

// ErrInvalidConfig is matched by ValidationErrors via errors.Is.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// warningFields are problems that do not stop the board from starting.
var warningFields = []string{"transport.device", "metrics.listen"}

// IsWarning reports whether this is a non-fatal issue.
func (e *ValidationError) IsWarning() bool {
	for _, f := range warningFields {
		if strings.HasPrefix(e.Field, f) {
			return true
		}
	}
	return false
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is(err, ErrInvalidConfig) match.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Warnings returns only warning-level issues.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			out = append(out, err)
		}
	}
	return out
}

// Errors returns only fatal issues.
func (e ValidationErrors) Errors() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			out = append(out, err)
		}
	}
	return out
}

// HasErrors reports whether any issue is fatal.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) ValidationError {
	return ValidationError{Field: field, Message: fmt.Sprintf("value must be between %v and %v", min, max)}
}

func checkRange(errs *ValidationErrors, field string, v, min, max int) {
	if v < min || v > max {
		*errs = append(*errs, RangeError(field, min, max))
	}
}

func inMatrix(m *MatrixConfig, row, col int) bool {
	return row >= 0 && row < m.Rows && col >= 0 && col < m.Cols
}

// ValidateConfig checks every section. Only fatal issues make it return an
// error; warnings are available through Check.
func ValidateConfig(c *Config) error {
	errs := Check(c)
	if errs.HasErrors() {
		return errs.Errors()
	}
	return nil
}

// Check returns every issue, fatal or not.
func Check(c *Config) ValidationErrors {
	var errs ValidationErrors

	checkRange(&errs, "version", c.Version, 1, Version)
	errs = append(errs, validateMatrix(&c.Matrix)...)
	errs = append(errs, validateTiming(&c.Timing)...)
	errs = append(errs, validateKeyboard(&c.Keyboard)...)
	errs = append(errs, validateMouse(&c.Mouse, &c.Matrix)...)
	errs = append(errs, validateAnalog(&c.Analog)...)
	errs = append(errs, validateStorage(c)...)
	errs = append(errs, validateTransport(&c.Transport)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)
	return errs
}

func validateMatrix(m *MatrixConfig) ValidationErrors {
	var errs ValidationErrors
	checkRange(&errs, "matrix.rows", m.Rows, 1, 255)
	checkRange(&errs, "matrix.cols", m.Cols, 1, matrix.MaxCols)
	checkRange(&errs, "matrix.debounce_bits", m.DebounceBits, 1, 4)
	if m.RepeatStart == 0 {
		errs = append(errs, ValidationError{Field: "matrix.repeat_start", Message: "must be at least 1 tick"})
	}
	if m.RepeatNext == 0 {
		errs = append(errs, ValidationError{Field: "matrix.repeat_next", Message: "must be at least 1 tick"})
	}
	for i, col := range m.RepeatColumns {
		if col < 0 || col >= m.Cols {
			errs = append(errs, RangeError(fmt.Sprintf("matrix.repeat_columns[%d]", i), 0, m.Cols-1))
		}
	}
	return errs
}

func validateTiming(t *TimingConfig) ValidationErrors {
	var errs ValidationErrors
	checkRange(&errs, "timing.tick_hz", t.TickHz, 1, 10000)
	checkRange(&errs, "timing.poll_interval_ms", t.PollIntervalMs, 1, 1000)
	if t.MKTTimeout == 0 {
		errs = append(errs, ValidationError{Field: "timing.mkt_timeout", Message: "must be at least 1 tick"})
	}
	return errs
}

func validateKeyboard(k *KeyboardConfig) ValidationErrors {
	var errs ValidationErrors
	checkRange(&errs, "keyboard.active_capacity", k.ActiveCapacity, 1, 64)
	checkRange(&errs, "keyboard.report_capacity", k.ReportCapacity, 1, keyboard.MaxReportKeys)
	return errs
}

func validateMouse(ms *MouseConfig, m *MatrixConfig) ValidationErrors {
	var errs ValidationErrors
	if !ms.Enabled {
		return errs
	}
	if !inMatrix(m, ms.Toggle.Row, ms.Toggle.Col) {
		errs = append(errs, ValidationError{Field: "mouse.toggle", Message: fmt.Sprintf("(%d,%d) is outside the matrix", ms.Toggle.Row, ms.Toggle.Col)})
	}
	checkRange(&errs, "mouse.layer", ms.Layer, 0, layout.MaxLayers-1)
	for i, b := range ms.Buttons {
		field := fmt.Sprintf("mouse.buttons[%d]", i)
		if !inMatrix(m, b.Row, b.Col) {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("(%d,%d) is outside the matrix", b.Row, b.Col)})
		}
		if b.Button == 0 || b.Button&^0x1F != 0 {
			errs = append(errs, ValidationError{Field: field + ".button", Message: fmt.Sprintf("invalid button mask %#x", b.Button)})
		}
	}
	return errs
}

func validateAnalog(a *AnalogConfig) ValidationErrors {
	var errs ValidationErrors
	if a.Threshold < 0 {
		errs = append(errs, ValidationError{Field: "analog.threshold", Message: "cannot be negative"})
	}
	checkRange(&errs, "analog.layer_positive_x", a.LayerPositiveX, 0, layout.MaxLayers-1)
	checkRange(&errs, "analog.layer_negative_x", a.LayerNegativeX, 0, layout.MaxLayers-1)
	for field, name := range map[string]string{
		"analog.mods_positive_y": a.ModsPositiveY,
		"analog.mods_negative_y": a.ModsNegativeY,
	} {
		if name == "" {
			continue
		}
		if _, ok := layout.ParseModifier(strings.ToUpper(name)); !ok {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("unknown modifier %q", name)})
		}
	}
	return errs
}

func validateStorage(c *Config) ValidationErrors {
	var errs ValidationErrors
	if c.Storage.Path == "" {
		errs = append(errs, ValidationError{Field: "storage.path", Message: "required field is missing"})
	}
	if c.Vault.Time < 1 {
		errs = append(errs, ValidationError{Field: "vault.time", Message: "must be at least 1"})
	}
	if c.Vault.Threads < 1 {
		errs = append(errs, ValidationError{Field: "vault.threads", Message: "must be at least 1"})
	}
	if c.Vault.Memory < 8*uint32(c.Vault.Threads) {
		errs = append(errs, ValidationError{Field: "vault.memory_kib", Message: "must be at least 8 KiB per thread"})
	}
	return errs
}

func validateTransport(t *TransportConfig) ValidationErrors {
	var errs ValidationErrors
	if t.Device == "" {
		errs = append(errs, ValidationError{Field: "transport.device", Message: "no device, reports go to stdout"})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: fmt.Sprintf("file path is required when output is %q", l.Output),
			})
		}
		if l.MaxSizeMB < 1 {
			errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "max size must be at least 1 MB"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "max backups cannot be negative"})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_age_days", Message: "max age cannot be negative"})
	}
	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors
	if !m.Enabled {
		return errs
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		errs = append(errs, ValidationError{Field: "metrics.listen", Message: fmt.Sprintf("invalid address %q, metrics disabled", m.Listen)})
	}
	return errs
}
