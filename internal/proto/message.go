package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "join"
	InboundTypeSendMessage = "sendMessage"
	InboundTypeTyping      = "typing"
	InboundTypeStopTyping  = "stopTyping"
	InboundTypeMessageRead = "messageRead"

	OutboundTypeOnlineUsers   = "onlineUsers"
	OutboundTypeUserOnline    = "userOnline"
	OutboundTypeUserOffline   = "userOffline"
	OutboundTypeJoinConfirmed = "joinConfirmed"
	OutboundTypeNewMessage    = "newMessage"
	OutboundTypeUserTyping    = "userTyping"
	OutboundTypeMessageRead   = "messageRead"
	OutboundTypeError         = "error"
)

// JoinData binds the connection to a user id. The id must match the
// authenticated token identity.
type JoinData struct {
	UserID string `json:"userId"`
}

// MessageData carries a chat message over the socket. On sendMessage the
// client echoes the message it already persisted over REST.
type MessageData struct {
	ID        string     `json:"_id"`
	Sender    string     `json:"sender"`
	Receiver  string     `json:"receiver"`
	Content   string     `json:"content"`
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	IsRead    bool       `json:"isRead"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	ReadBy    string     `json:"readBy,omitempty"`
}

// TypingData signals a typing transition towards a receiver.
type TypingData struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// ReadData reports a read message back to its original sender.
type ReadData struct {
	MessageID string `json:"messageId"`
	SenderID  string `json:"senderId"`
	ReadBy    string `json:"readBy"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JoinConfirmedData acknowledges a successful join.
type JoinConfirmedData struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// PresenceData identifies the user of an incremental presence event.
type PresenceData struct {
	UserID string `json:"userId"`
}

// UserTypingData is the targeted typing indicator payload.
type UserTypingData struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessageReadData is the read-receipt payload pushed to the sender.
type MessageReadData struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
