package session

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/wayfarerhq/wayfarer/internal/db"
)

// setupTestDB opens a migrated database in a temp dir
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStore(t *testing.T) {
	store := NewStore(setupTestDB(t))

	sess, err := store.GetOrCreate("test-session")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if sess.Key != "test-session" {
		t.Errorf("expected session key 'test-session', got %q", sess.Key)
	}

	// Getting the same key again is idempotent
	sess2, err := store.GetOrCreate("test-session")
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}
	if sess.Key != sess2.Key {
		t.Error("expected same session key")
	}

	err = store.AppendMessage(sess.Key, Message{
		Role:    "user",
		Content: "hello",
	})
	if err != nil {
		t.Fatalf("failed to append message: %v", err)
	}

	messages, err := store.GetMessages(sess.Key, 0)
	if err != nil {
		t.Fatalf("failed to get messages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Content != "hello" {
		t.Errorf("expected content 'hello', got %q", messages[0].Content)
	}

	if err := store.Reset(sess.Key); err != nil {
		t.Fatalf("failed to reset session: %v", err)
	}

	messages, _ = store.GetMessages(sess.Key, 0)
	if len(messages) != 0 {
		t.Errorf("expected 0 messages after reset, got %d", len(messages))
	}
}

func TestStoreWithLimit(t *testing.T) {
	store := NewStore(setupTestDB(t))

	sess, _ := store.GetOrCreate("limit-test")

	for i := 0; i < 10; i++ {
		store.AppendMessage(sess.Key, Message{
			Role:    "user",
			Content: "message",
		})
	}

	messages, _ := store.GetMessages(sess.Key, 5)
	if len(messages) != 5 {
		t.Errorf("expected 5 messages with limit, got %d", len(messages))
	}

	count, err := store.MessageCount(sess.Key)
	if err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if count != 10 {
		t.Errorf("expected count 10, got %d", count)
	}
}

func TestStoreToolPayloads(t *testing.T) {
	store := NewStore(setupTestDB(t))

	sess, _ := store.GetOrCreate("tool-test")

	calls, _ := json.Marshal([]ToolCall{{ID: "tc-1", Name: "files", Input: json.RawMessage(`{"action":"list"}`)}})
	if err := store.AppendMessage(sess.Key, Message{Role: "assistant", ToolCalls: calls}); err != nil {
		t.Fatalf("failed to append tool call message: %v", err)
	}

	results, _ := json.Marshal([]ToolResult{{ToolCallID: "tc-1", Content: "ok"}})
	if err := store.AppendMessage(sess.Key, Message{Role: "tool", ToolResults: results}); err != nil {
		t.Fatalf("failed to append tool result message: %v", err)
	}

	messages, err := store.GetMessages(sess.Key, 0)
	if err != nil {
		t.Fatalf("failed to get messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}

	var gotCalls []ToolCall
	if err := json.Unmarshal(messages[0].ToolCalls, &gotCalls); err != nil {
		t.Fatalf("failed to unmarshal tool calls: %v", err)
	}
	if len(gotCalls) != 1 || gotCalls[0].Name != "files" {
		t.Errorf("unexpected tool calls: %+v", gotCalls)
	}
}

func TestListSessions(t *testing.T) {
	store := NewStore(setupTestDB(t))

	store.GetOrCreate("session-1")
	store.GetOrCreate("session-2")
	store.GetOrCreate("session-3")

	sessions, err := store.ListSessions()
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(sessions))
	}
}

func TestScheduledKeysAreUnique(t *testing.T) {
	a, b := ScheduledKey(), ScheduledKey()
	if a == b {
		t.Error("scheduled keys should be unique")
	}
}
