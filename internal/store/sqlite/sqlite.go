package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatconnect/chatconnect-server/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id        TEXT PRIMARY KEY,
	sender    TEXT NOT NULL,
	receiver  TEXT NOT NULL,
	content   TEXT NOT NULL,
	type      TEXT NOT NULL DEFAULT 'text',
	timestamp TIMESTAMP NOT NULL,
	is_read   BOOLEAN NOT NULL DEFAULT 0,
	read_at   TIMESTAMP,
	read_by   TEXT NOT NULL DEFAULT '',
	FOREIGN KEY (sender) REFERENCES users(id),
	FOREIGN KEY (receiver) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(sender, receiver, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver, is_read);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file (":memory:" for tests).
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, query, id, name, email, passwordHash, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE email = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// ListUsers lists all users ordered by name.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `
		SELECT id, name, email, password_hash, created_at
		FROM users
		ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var u store.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// ==== MessageStore implementation ====

// CreateMessage persists a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, sender, receiver, content string, msgType store.MessageType) (*store.Message, error) {
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, fmt.Errorf("unknown message type %q", msgType)
	}

	query := `
		INSERT INTO messages (id, sender, receiver, content, type, timestamp, is_read)
		VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	id := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, query, id, sender, receiver, content, string(msgType), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return s.GetMessageByID(ctx, id)
}

// GetMessageByID retrieves a message by ID.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*store.Message, error) {
	query := `
		SELECT id, sender, receiver, content, type, timestamp, is_read, read_at, read_by
		FROM messages
		WHERE id = ?
	`
	var (
		m      store.Message
		readAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.Sender,
		&m.Receiver,
		&m.Content,
		&m.Type,
		&m.Timestamp,
		&m.IsRead,
		&readAt,
		&m.ReadBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}

	return &m, nil
}

// GetConversation retrieves all messages between two users, oldest first.
func (s *SQLiteStore) GetConversation(ctx context.Context, userA, userB string) ([]*store.Message, error) {
	query := `
		SELECT id, sender, receiver, content, type, timestamp, is_read, read_at, read_by
		FROM messages
		WHERE (sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var (
			m      store.Message
			readAt sql.NullTime
		)
		if err := rows.Scan(
			&m.ID,
			&m.Sender,
			&m.Receiver,
			&m.Content,
			&m.Type,
			&m.Timestamp,
			&m.IsRead,
			&readAt,
			&m.ReadBy,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// MarkMessageRead marks a single message as read. The WHERE clause keeps the
// transition monotonic: an already-read message is left untouched.
func (s *SQLiteStore) MarkMessageRead(ctx context.Context, messageID, readBy string) error {
	query := `
		UPDATE messages
		SET is_read = 1, read_at = ?, read_by = ?
		WHERE id = ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), readBy, messageID)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}

	// Distinguish "already read" (fine) from "no such message".
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		if _, err := s.GetMessageByID(ctx, messageID); err != nil {
			return err
		}
	}

	return nil
}

// MarkConversationRead marks all unread messages from sender to receiver as read.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, sender, receiver string) (int64, error) {
	query := `
		UPDATE messages
		SET is_read = 1, read_at = ?, read_by = ?
		WHERE sender = ? AND receiver = ? AND is_read = 0
	`
	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), receiver, sender, receiver)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}

	return result.RowsAffected()
}
