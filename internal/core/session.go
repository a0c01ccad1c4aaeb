package core

import (
	"sync"
	"time"
)

// Session is one live connection bound to at most one identity. The transport
// layer owns the underlying connection; the hub only ever touches the event
// queue. Identity is set by the hub when the session joins the registry.
type Session struct {
	ID          string
	Identity    string
	ConnectedAt time.Time
	Events      chan *Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession constructs a session with a bounded outbound event queue.
func NewSession(id string, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Session{
		ID:          id,
		ConnectedAt: time.Now(),
		Events:      make(chan *Event, queueSize),
		done:        make(chan struct{}),
	}
}

// Close closes the event queue exactly once. Only the hub calls this; the
// transport write loop observes it as channel closure and shuts the socket.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		close(s.Events)
	})
}

// Closed reports whether Close has been called. The session's read loop may
// still be delivering commands for a short window after eviction; the hub
// uses this to drop them instead of touching the closed event queue.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
