// Package config handles configuration loading and validation for promptproof.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/promptproof/
//   - Linux:   ~/.local/share/promptproof/
//   - Windows: %APPDATA%\promptproof\
//
// Falls back to ~/.promptproof if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir()
	case "linux":
		return linuxDataDir()
	case "windows":
		return windowsDataDir()
	default:
		return fallbackDataDir()
	}
}

// PlatformConfigDir returns the platform-specific config directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/promptproof/
//   - Linux:   ~/.config/promptproof/
//   - Windows: %APPDATA%\promptproof\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return macOSDataDir() // macOS uses same dir for config and data
	case "linux":
		return linuxConfigDir()
	case "windows":
		return windowsDataDir() // Windows uses same dir for config and data
	default:
		return fallbackDataDir()
	}
}

// PlatformLogDir returns the platform-specific log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/promptproof/
//   - Linux:   ~/.local/share/promptproof/logs/
//   - Windows: %LOCALAPPDATA%\promptproof\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		home := userHome()
		return filepath.Join(home, "Library", "Logs", "promptproof")
	case "linux":
		return filepath.Join(linuxDataDir(), "logs")
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "promptproof", "logs")
		}
		return filepath.Join(userHome(), "AppData", "Local", "promptproof", "logs")
	default:
		return filepath.Join(fallbackDataDir(), "logs")
	}
}

func macOSDataDir() string {
	return filepath.Join(userHome(), "Library", "Application Support", "promptproof")
}

// Linux paths follow the XDG Base Directory Specification.

func linuxDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "promptproof")
	}
	return filepath.Join(userHome(), ".local", "share", "promptproof")
}

func linuxConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "promptproof")
	}
	return filepath.Join(userHome(), ".config", "promptproof")
}

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "promptproof")
	}
	return filepath.Join(userHome(), "AppData", "Roaming", "promptproof")
}

func fallbackDataDir() string {
	return filepath.Join(userHome(), ".promptproof")
}

func userHome() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// DefaultPaths collects the standard file locations for the current platform.
type DefaultPaths struct {
	DataDir   string
	ConfigDir string
	LogDir    string

	ConfigFile   string
	DatabaseFile string
	EventLogFile string
	InboxDir     string
}

// GetDefaultPaths returns all default paths for the current platform.
func GetDefaultPaths() *DefaultPaths {
	dataDir := PlatformDataDir()
	configDir := PlatformConfigDir()
	logDir := PlatformLogDir()

	return &DefaultPaths{
		DataDir:   dataDir,
		ConfigDir: configDir,
		LogDir:    logDir,

		ConfigFile:   filepath.Join(configDir, "config.toml"),
		DatabaseFile: filepath.Join(dataDir, "history.db"),
		EventLogFile: filepath.Join(dataDir, "events.log"),
		InboxDir:     filepath.Join(dataDir, "inbox"),
	}
}

// SupportedConfigFormats returns the list of supported config file formats.
func SupportedConfigFormats() []string {
	return []string{
		"toml",
		"json",
		"yaml",
		"yml",
	}
}

// FindConfigFile searches for a config file in standard locations.
// Returns the path to the first found config file, or empty string if
// none found.
func FindConfigFile() string {
	paths := GetDefaultPaths()

	// Search order: current directory, config directory, data directory.
	searchDirs := []string{
		".",
		paths.ConfigDir,
		paths.DataDir,
	}

	for _, dir := range searchDirs {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}

	return ""
}
