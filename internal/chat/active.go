package chat

import "sync/atomic"

// ActiveSession holds the id of the currently joined session.
//
// Asynchronous continuations (socket frames, history responses, poll ticks,
// delayed joins) read it before mutating state so that work started for a
// session the user has left is dropped. It is written synchronously before
// any join or leave is dispatched.
type ActiveSession struct {
	v atomic.Int64
}

// Load returns the active session, or NoSession.
func (a *ActiveSession) Load() SessionID {
	return SessionID(a.v.Load())
}

// Store sets the active session.
func (a *ActiveSession) Store(id SessionID) {
	a.v.Store(int64(id))
}

// Is reports whether id is the active session.
func (a *ActiveSession) Is(id SessionID) bool {
	return id != NoSession && a.Load() == id
}
