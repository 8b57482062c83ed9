package appdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withDir(t *testing.T, dir string) {
	t.Helper()
	ResetCache()
	t.Setenv(DirEnv, dir)
	t.Cleanup(ResetCache)
}

func TestDir_EnvOverride(t *testing.T) {
	custom := t.TempDir()
	withDir(t, custom)

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if dir != custom {
		t.Errorf("Dir() = %q, want %q", dir, custom)
	}
}

func TestDir_DefaultPath(t *testing.T) {
	withDir(t, "")
	t.Setenv("XDG_DATA_HOME", "")

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() failed: %v", err)
	}
	if !strings.Contains(dir, "chatline") {
		t.Errorf("Dir() = %q, expected path to contain 'chatline'", dir)
	}
}

func TestDir_Cached(t *testing.T) {
	first := t.TempDir()
	withDir(t, first)
	if _, err := Dir(); err != nil {
		t.Fatal(err)
	}

	os.Setenv(DirEnv, t.TempDir())
	dir, _ := Dir()
	if dir != first {
		t.Errorf("Dir() = %q, want cached %q", dir, first)
	}
}

func TestEnsureDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "data")
	withDir(t, base)

	if err := EnsureDir(); err != nil {
		t.Fatalf("EnsureDir() failed: %v", err)
	}
	for _, p := range []string{base, filepath.Join(base, LogsDirName)} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Errorf("%s was not created: %v", p, err)
		}
	}
	if err := EnsureDir(); err != nil {
		t.Errorf("second EnsureDir() failed: %v", err)
	}
}

func TestPaths(t *testing.T) {
	base := t.TempDir()
	withDir(t, base)

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"config", ConfigPath, filepath.Join(base, "config.yaml")},
		{"token", TokenPath, filepath.Join(base, "token")},
		{"logs", LogsDir, filepath.Join(base, "logs")},
		{"exports", ExportsDir, filepath.Join(base, "exports")},
	}
	for _, tt := range tests {
		got, err := tt.fn()
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
		}
	}
}
