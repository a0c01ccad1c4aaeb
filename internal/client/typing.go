package client

import "time"

// DefaultTypingDebounce is how long after the last keystroke a stop-typing
// signal fires: two typing intervals of one second each.
const DefaultTypingDebounce = 2 * time.Second

// TypingNotifier debounces outgoing typing signals. Time is passed in by the
// caller so the debounce is deterministic under test; the UI drives it from
// keystrokes, a periodic tick, and sends.
type TypingNotifier struct {
	debounce time.Duration
	typing   bool
	deadline time.Time
}

// NewTypingNotifier builds a notifier with the given debounce window.
// A non-positive debounce falls back to the default.
func NewTypingNotifier(debounce time.Duration) *TypingNotifier {
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	return &TypingNotifier{debounce: debounce}
}

// Keystroke records input activity at the given time and restarts the
// debounce window. It returns true when a typing signal should be emitted,
// which happens only on the idle-to-typing transition.
func (n *TypingNotifier) Keystroke(now time.Time) (emitTyping bool) {
	n.deadline = now.Add(n.debounce)
	if n.typing {
		return false
	}
	n.typing = true
	return true
}

// Expire checks the debounce window. It returns true when a stop-typing
// signal should be emitted because the window elapsed with no keystrokes.
func (n *TypingNotifier) Expire(now time.Time) (emitStop bool) {
	if !n.typing || now.Before(n.deadline) {
		return false
	}
	n.typing = false
	return true
}

// MessageSent clears typing state on send. It returns true when a
// stop-typing signal should be emitted.
func (n *TypingNotifier) MessageSent() (emitStop bool) {
	if !n.typing {
		return false
	}
	n.typing = false
	return true
}

// Typing reports whether the local user is currently considered typing.
func (n *TypingNotifier) Typing() bool { return n.typing }
