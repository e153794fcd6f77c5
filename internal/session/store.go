// Package session persists agent conversations. The interactive conversation
// lives under a fixed key; scheduled runs use throwaway keys so they never
// share state with it.
package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InteractiveKey is the session key of the single long-lived conversation.
const InteractiveKey = "interactive"

// Message represents a conversation message
type Message struct {
	ID          int64           `json:"id,omitempty"`
	SessionKey  string          `json:"session_key"`
	Role        string          `json:"role"` // user, assistant, tool
	Content     string          `json:"content,omitempty"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`
	ToolResults json.RawMessage `json:"tool_results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ToolCall represents a tool invocation requested by the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Session represents a stored conversation
type Session struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store handles session persistence on the shared database handle
type Store struct {
	db *sql.DB
}

// NewStore creates a session store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ScheduledKey returns a fresh session key for one unattended execution
func ScheduledKey() string {
	return "scheduled-" + uuid.New().String()
}

// GetOrCreate returns the session for key, creating it if needed
func (s *Store) GetOrCreate(key string) (*Session, error) {
	sess, err := s.get(key)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(
		"INSERT INTO sessions (key, created_at, updated_at) VALUES (?, ?, ?)",
		key, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Session{Key: key, CreatedAt: time.Unix(now, 0), UpdatedAt: time.Unix(now, 0)}, nil
}

func (s *Store) get(key string) (*Session, error) {
	var sess Session
	var createdAt, updatedAt int64
	err := s.db.QueryRow(
		"SELECT key, created_at, updated_at FROM sessions WHERE key = ?",
		key,
	).Scan(&sess.Key, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

// AppendMessage adds a message to a session
func (s *Store) AppendMessage(key string, msg Message) error {
	var toolCalls, toolResults sql.NullString
	if len(msg.ToolCalls) > 0 {
		toolCalls = sql.NullString{String: string(msg.ToolCalls), Valid: true}
	}
	if len(msg.ToolResults) > 0 {
		toolResults = sql.NullString{String: string(msg.ToolResults), Valid: true}
	}

	now := time.Now().Unix()
	_, err := s.db.Exec(
		"INSERT INTO session_messages (session_key, role, content, tool_calls, tool_results, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		key, msg.Role, msg.Content, toolCalls, toolResults, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = s.db.Exec("UPDATE sessions SET updated_at = ? WHERE key = ?", now, key)
	return err
}

// GetMessages retrieves messages for a session in insertion order. A positive
// limit returns only the last N messages.
func (s *Store) GetMessages(key string, limit int) ([]Message, error) {
	query := `
		SELECT id, session_key, role, content, tool_calls, tool_results, created_at
		FROM session_messages
		WHERE session_key = ?
		ORDER BY id ASC
	`
	args := []any{key}
	if limit > 0 {
		query = `
			SELECT id, session_key, role, content, tool_calls, tool_results, created_at
			FROM (
				SELECT * FROM session_messages
				WHERE session_key = ?
				ORDER BY id DESC
				LIMIT ?
			) ORDER BY id ASC
		`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var toolCalls, toolResults sql.NullString
		var createdAt int64
		if err := rows.Scan(
			&msg.ID, &msg.SessionKey, &msg.Role, &msg.Content,
			&toolCalls, &toolResults, &createdAt,
		); err != nil {
			return nil, err
		}
		msg.CreatedAt = time.Unix(createdAt, 0)
		if toolCalls.Valid {
			msg.ToolCalls = json.RawMessage(toolCalls.String)
		}
		if toolResults.Valid {
			msg.ToolResults = json.RawMessage(toolResults.String)
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// MessageCount returns the number of messages in a session
func (s *Store) MessageCount(key string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM session_messages WHERE session_key = ?", key,
	).Scan(&count)
	return count, err
}

// Reset clears all messages from a session
func (s *Store) Reset(key string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM session_messages WHERE session_key = ?", key); err != nil {
		return err
	}

	if _, err := tx.Exec(
		"UPDATE sessions SET updated_at = ? WHERE key = ?",
		time.Now().Unix(), key,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ListSessions returns all sessions, most recently updated first
func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query(
		"SELECT key, created_at, updated_at FROM sessions ORDER BY updated_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var createdAt, updatedAt int64
		if err := rows.Scan(&sess.Key, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		sess.CreatedAt = time.Unix(createdAt, 0)
		sess.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Delete removes a session and all its messages
func (s *Store) Delete(key string) error {
	// session_messages rows cascade via the foreign key
	_, err := s.db.Exec("DELETE FROM sessions WHERE key = ?", key)
	return err
}
