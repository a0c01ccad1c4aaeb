package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered user.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// MessageType distinguishes message payload kinds. Drawing content is an
// opaque blob as far as the server is concerned.
type MessageType string

const (
	MessageTypeText    MessageType = "text"
	MessageTypeDrawing MessageType = "drawing"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeDrawing
}

// Message represents a persisted chat message between two users.
type Message struct {
	ID        string
	Sender    string
	Receiver  string
	Content   string
	Type      MessageType
	Timestamp time.Time
	IsRead    bool
	ReadAt    *time.Time
	ReadBy    string
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, name, email, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// ListUsers lists all users.
	ListUsers(ctx context.Context) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage persists a new message and returns it with its
	// assigned ID and timestamp. Type defaults to text when empty.
	CreateMessage(ctx context.Context, sender, receiver, content string, msgType MessageType) (*Message, error)

	// GetMessageByID retrieves a message by ID.
	GetMessageByID(ctx context.Context, id string) (*Message, error)

	// GetConversation retrieves all messages exchanged between two users,
	// ordered by timestamp ascending.
	GetConversation(ctx context.Context, userA, userB string) ([]*Message, error)

	// MarkMessageRead marks a single message as read by the given user.
	// The transition is monotonic: a message already read stays read.
	MarkMessageRead(ctx context.Context, messageID, readBy string) error

	// MarkConversationRead marks every unread message sent from sender to
	// receiver as read by the receiver. Returns the number of updated rows.
	MarkConversationRead(ctx context.Context, sender, receiver string) (int64, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
