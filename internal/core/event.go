package core

import "github.com/chatconnect/chatconnect-server/internal/store"

// EventKind is a notification the hub emits to sessions.
type EventKind int

const (
	// EventOnlineUsers delivers the full online snapshot to a joining session.
	EventOnlineUsers EventKind = iota
	// EventUserOnline notifies other sessions that an identity came online.
	EventUserOnline
	// EventUserOffline notifies other sessions that an identity went offline.
	EventUserOffline
	// EventJoinConfirmed acknowledges a successful join to the joining session.
	EventJoinConfirmed
	// EventNewMessage delivers a relayed message to its receiver.
	EventNewMessage
	// EventUserTyping delivers a typing transition to the targeted session.
	EventUserTyping
	// EventMessageRead delivers a read receipt to the original sender.
	EventMessageRead
	// EventError notifies a session about a domain error.
	EventError
)

// TypingEvent is the payload for EventUserTyping.
type TypingEvent struct {
	UserID   string
	IsTyping bool
}

// ReadEvent is the payload for EventMessageRead.
type ReadEvent struct {
	MessageID string
	ReadBy    string
}

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind EventKind

	User      string         // EventUserOnline / EventUserOffline / EventJoinConfirmed
	SessionID string         // EventJoinConfirmed
	Users     []string       // EventOnlineUsers
	Message   *store.Message // EventNewMessage
	Typing    *TypingEvent   // EventUserTyping
	Read      *ReadEvent     // EventMessageRead
	Error     *CoreError     // EventError
}
