package token

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inercia/chatline/internal/fileutil"
	"github.com/inercia/chatline/internal/logging"
)

// reloadDebounce batches the burst of events an editor save produces.
const reloadDebounce = 50 * time.Millisecond

// File reads the token from a file and reloads it when the file changes.
type File struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	token string
	err   error

	watcher *fsnotify.Watcher
	timer   *time.Timer
	done    chan struct{}
	stopped chan struct{}
}

// NewFile creates a provider for the token stored at path. The file is
// read once; call Watch to follow changes.
func NewFile(path string) *File {
	f := &File{path: path, logger: logging.Token()}
	f.reload()
	return f
}

// Path returns the token file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) AccessToken() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return "", f.err
	}
	return Static(f.token).AccessToken()
}

func (f *File) reload() {
	data, err := os.ReadFile(f.path)
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case errors.Is(err, os.ErrNotExist):
		f.token, f.err = "", ErrNoToken
	case err != nil:
		f.token, f.err = "", fmt.Errorf("read token file: %w", err)
	default:
		f.token, f.err = strings.TrimSpace(string(data)), nil
	}
}

// Watch starts following the token file. The parent directory is watched
// so that atomic replacements and late creation are seen.
func (f *File) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create token watcher: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	f.watcher = w
	f.done = make(chan struct{})
	f.stopped = make(chan struct{})
	go f.eventLoop()
	return nil
}

func (f *File) eventLoop() {
	defer close(f.stopped)
	name := filepath.Clean(f.path)
	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			f.scheduleReload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn("Token watcher error", "error", err)
		}
	}
}

func (f *File) scheduleReload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(reloadDebounce, func() {
		f.reload()
		f.logger.Info("Token file reloaded", "path", f.path)
	})
}

// Close stops watching. It is safe to call without Watch.
func (f *File) Close() error {
	if f.watcher == nil {
		return nil
	}
	close(f.done)
	err := f.watcher.Close()
	<-f.stopped
	f.mu.Lock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.mu.Unlock()
	f.watcher = nil
	return err
}

// Save writes token to path with owner-only permissions.
func Save(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("save token file: %w", err)
	}
	return nil
}
