package chat

import (
	"sync"
	"time"
)

// DefaultPollInterval is the default interval of the polling fallback.
const DefaultPollInterval = 5 * time.Second

// Poller runs a function on a fixed interval until stopped.
//
// Restart tears down the running timer and starts a fresh one, so the
// first tick after a restart is one full interval away. Stop does not wait
// for an in-flight tick; the tick function must re-check relevance itself.
// It is safe for concurrent use, including calling Restart or Stop from
// within the tick function.
type Poller struct {
	interval time.Duration
	tick     func()

	mu   sync.Mutex
	stop chan struct{}
}

// NewPoller creates a stopped poller.
func NewPoller(interval time.Duration, tick func()) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{interval: interval, tick: tick}
}

// Restart stops the current timer (if any) and starts a new one.
func (p *Poller) Restart() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		close(p.stop)
	}
	stop := make(chan struct{})
	p.stop = stop
	go p.run(stop)
}

// Stop stops the timer. It is a no-op when already stopped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

// Running reports whether a timer is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stop != nil
}

func (p *Poller) run(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A tick and a stop may be ready together; stop wins.
			select {
			case <-stop:
				return
			default:
			}
			p.tick()
		}
	}
}
