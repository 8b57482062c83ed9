// Package shutdown coordinates orderly teardown of the chat client: the
// chat view, the socket, the token watcher and the log files.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/inercia/chatline/internal/logging"
)

// Func performs cleanup. It receives the reason shutdown was triggered.
type Func func(reason string)

// Manager runs registered cleanups exactly once, on a signal or an
// explicit Shutdown call. It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
	reason   string
	cleanups []Func

	ctx    context.Context
	cancel context.CancelFunc
	stop   func()
}

// New creates a manager. Signal handling starts with Start.
func New() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is cancelled as soon as shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// AddCleanup registers fn. Cleanups run in registration order.
func (m *Manager) AddCleanup(fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, fn)
}

// Start listens for SIGINT and SIGTERM and shuts down on the first one.
func (m *Manager) Start() {
	logger := logging.Shutdown()
	logger.Debug("Shutdown manager started, listening for signals")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	m.mu.Lock()
	m.stop = func() { signal.Stop(sigChan) }
	m.mu.Unlock()

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Signal received, initiating shutdown", "signal", sig.String())
			m.Shutdown("signal:" + sig.String())
		case <-m.done:
		}
	}()
}

// Shutdown runs the cleanups with the given reason and blocks until they
// finish. Only the first call has any effect; later calls wait for it.
func (m *Manager) Shutdown(reason string) {
	m.once.Do(func() {
		m.run(reason)
	})
	<-m.done
}

func (m *Manager) run(reason string) {
	logger := logging.Shutdown()
	logger.Info("Starting shutdown sequence", "reason", reason)

	m.mu.Lock()
	m.reason = reason
	cleanups := append([]Func(nil), m.cleanups...)
	stop := m.stop
	m.mu.Unlock()

	m.cancel()
	if stop != nil {
		stop()
	}

	for i, fn := range cleanups {
		logger.Debug("Running cleanup function", "index", i, "total", len(cleanups))
		m.safeRun(fn, reason)
	}

	logger.Info("Shutdown sequence complete", "reason", reason)
	close(m.done)
}

func (m *Manager) safeRun(fn Func, reason string) {
	defer func() {
		if r := recover(); r != nil {
			logging.Shutdown().Error("Cleanup function panicked", "panic", r)
		}
	}()
	fn(reason)
}

// Done is closed when shutdown has completed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Reason returns why shutdown happened, or "" before it has.
func (m *Manager) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}
