package core

import "github.com/chatconnect/chatconnect-server/internal/store"

// CommandKind describes what the session wants the hub to do.
type CommandKind int

const (
	// CommandJoin binds the session to an identity in the registry.
	CommandJoin CommandKind = iota
	// CommandSendMessage relays an already-persisted message to its receiver.
	CommandSendMessage
	// CommandTyping signals that the sender started typing to the receiver.
	CommandTyping
	// CommandStopTyping signals that the sender stopped typing.
	CommandStopTyping
	// CommandMessageRead reports that a message was read by the receiver.
	CommandMessageRead
)

// TypingSignal identifies a typing transition between two users.
type TypingSignal struct {
	SenderID   string
	ReceiverID string
}

// ReadReceipt reports a read-state transition for one message.
type ReadReceipt struct {
	MessageID string
	SenderID  string // original sender, target of the push
	ReadBy    string
}

// Command represents an action requested by a session.
type Command struct {
	Kind    CommandKind
	Session *Session

	Identity string         // CommandJoin
	Message  *store.Message // CommandSendMessage
	Typing   *TypingSignal  // CommandTyping / CommandStopTyping
	Receipt  *ReadReceipt   // CommandMessageRead
}
