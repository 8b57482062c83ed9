package chat

import (
	"errors"
	"sync"
)

var (
	// ErrSendDisabled is returned when a message cannot be sent right now:
	// a reply is pending, the session is errored, the text is blank or the
	// socket is not open.
	ErrSendDisabled = errors.New("sending is disabled")

	// ErrNoSession is returned when an operation needs an active session.
	ErrNoSession = errors.New("no active session")
)

// ErrorFlags marks sessions the server reported a business error for.
// Flags are independent per session and live for the process lifetime.
// It is safe for concurrent use.
type ErrorFlags struct {
	mu    sync.RWMutex
	flags map[SessionID]bool
}

// NewErrorFlags creates an empty flag store.
func NewErrorFlags() *ErrorFlags {
	return &ErrorFlags{flags: make(map[SessionID]bool)}
}

// Mark flags a session as errored.
func (e *ErrorFlags) Mark(id SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flags[id] = true
}

// Reset clears the flag for a session.
func (e *ErrorFlags) Reset(id SessionID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flags[id] = false
}

// Errored reports whether the session is flagged.
func (e *ErrorFlags) Errored(id SessionID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.flags[id]
}

// Snapshot returns a copy of all flags, including cleared ones.
func (e *ErrorFlags) Snapshot() map[SessionID]bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[SessionID]bool, len(e.flags))
	for k, v := range e.flags {
		out[k] = v
	}
	return out
}
