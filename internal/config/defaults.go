package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/adnw/
//   - Linux:   $XDG_DATA_HOME/adnw or ~/.local/share/adnw/
//   - Windows: %APPDATA%\adnw\
func PlatformDataDir() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "adnw")
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return filepath.Join(dir, "adnw")
		}
		return filepath.Join(home, "AppData", "Roaming", "adnw")
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, "adnw")
		}
		return filepath.Join(home, ".local", "share", "adnw")
	}
}

// PlatformConfigDir returns the platform config directory. macOS and
// Windows keep config next to data.
func PlatformConfigDir() string {
	if runtime.GOOS != "linux" {
		return PlatformDataDir()
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "adnw")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "adnw")
}

// SupportedConfigFormats returns the config file extensions Load understands.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml", "json"}
}

// FindConfigFile searches the working directory and then the config
// directory for config.<ext>. It returns "" when nothing is found.
func FindConfigFile() string {
	for _, dir := range []string{".", PlatformConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
