// Package appdir locates the chatline data directory, which holds
// config.yaml, the token file, logs and exported transcripts.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// DirEnv overrides the data directory.
	DirEnv = "CHATLINE_DIR"

	// ConfigFileName is the name of the YAML config file.
	ConfigFileName = "config.yaml"

	// TokenFileName is the name of the access token file.
	TokenFileName = "token"

	// LogsDirName is the log subdirectory.
	LogsDirName = "logs"

	// ExportsDirName is the default transcript export subdirectory.
	ExportsDirName = "exports"
)

var (
	cachedDir string
	mu        sync.RWMutex
)

// Dir returns the data directory:
//  1. CHATLINE_DIR if set
//  2. macOS: ~/Library/Application Support/chatline
//  3. Windows: %APPDATA%\chatline
//  4. Linux and others: $XDG_DATA_HOME/chatline or ~/.local/share/chatline
//
// It does not create the directory; see EnsureDir.
func Dir() (string, error) {
	mu.RLock()
	if cachedDir != "" {
		dir := cachedDir
		mu.RUnlock()
		return dir, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if cachedDir != "" {
		return cachedDir, nil
	}

	dir, err := resolveDir()
	if err != nil {
		return "", err
	}
	cachedDir = dir
	return dir, nil
}

func resolveDir() (string, error) {
	if envDir := os.Getenv(DirEnv); envDir != "" {
		return envDir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "chatline"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "chatline"), nil
	default:
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			dataDir = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataDir, "chatline"), nil
	}
}

// EnsureDir creates the data directory and its logs subdirectory.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	logs := filepath.Join(dir, LogsDirName)
	if err := os.MkdirAll(logs, 0o700); err != nil {
		return fmt.Errorf("failed to create logs directory %s: %w", logs, err)
	}
	return nil
}

func join(name string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPath returns the path of config.yaml.
func ConfigPath() (string, error) { return join(ConfigFileName) }

// TokenPath returns the path of the token file.
func TokenPath() (string, error) { return join(TokenFileName) }

// LogsDir returns the logs directory.
func LogsDir() (string, error) { return join(LogsDirName) }

// ExportsDir returns the default export directory.
func ExportsDir() (string, error) { return join(ExportsDirName) }

// ResetCache clears the cached directory. Used by tests.
func ResetCache() {
	mu.Lock()
	defer mu.Unlock()
	cachedDir = ""
}
