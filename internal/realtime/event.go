package realtime

import (
	"encoding/json"
	"unicode/utf8"
)

// Event types broadcast to connected clients
const (
	EventThinking = "thinking"
	EventToolCall = "tool_call"
	EventMessage  = "message"
	EventResponse = "response"
	EventResetAck = "reset_ack"
)

// maxToolResultBytes caps tool output in broadcast payloads. Full results
// still reach the model; clients only need a preview.
const maxToolResultBytes = 2000

// Event is a transient broadcast-once notification. Unset fields are omitted
// from the wire format.
type Event struct {
	Type    string          `json:"type"`
	Tool    string          `json:"tool,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  string          `json:"result,omitempty"`
	Content string          `json:"content,omitempty"`
}

// Thinking signals that a turn has started
func Thinking() Event {
	return Event{Type: EventThinking}
}

// ToolCall reports one tool invocation with a truncated result preview
func ToolCall(tool string, params json.RawMessage, result string) Event {
	if len(result) > maxToolResultBytes {
		// Back off to a rune boundary so the cut never splits a UTF-8
		// sequence and produces invalid JSON.
		cut := maxToolResultBytes
		for cut > 0 && !utf8.RuneStart(result[cut]) {
			cut--
		}
		result = result[:cut]
	}
	return Event{Type: EventToolCall, Tool: tool, Params: params, Result: result}
}

// Message carries an intermediate assistant message
func Message(content string) Event {
	return Event{Type: EventMessage, Content: content}
}

// Response carries the final text of a turn
func Response(content string) Event {
	return Event{Type: EventResponse, Content: content}
}

// ResetAck confirms that the conversation was cleared
func ResetAck() Event {
	return Event{Type: EventResetAck}
}
