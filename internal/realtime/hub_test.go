package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// testClient builds a client that is not backed by a real socket. Close
// tolerates the nil conn, and events are read straight from the send channel.
func testClient(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		send: make(chan []byte, 256),
		ID:   "test-client",
	}
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a := testClient(hub)
	b := testClient(hub)
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast(Response("hello"))

	for _, c := range []*Client{a, b} {
		ev := recvEvent(t, c)
		if ev.Type != EventResponse || ev.Content != "hello" {
			t.Errorf("unexpected event: %+v", ev)
		}
	}
}

func TestBroadcastOrderIsStable(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := testClient(hub)
	hub.Register(c)

	hub.Broadcast(Thinking())
	hub.Broadcast(ToolCall("files", json.RawMessage(`{"action":"list"}`), "ok"))
	hub.Broadcast(Response("done"))

	want := []string{EventThinking, EventToolCall, EventResponse}
	for _, w := range want {
		if ev := recvEvent(t, c); ev.Type != w {
			t.Fatalf("expected %s, got %s", w, ev.Type)
		}
	}
}

func TestSlowClientIsDroppedNotBlocking(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	slow := &Client{hub: hub, send: make(chan []byte), ID: "slow"} // unbuffered, never read
	ok := testClient(hub)
	hub.Register(slow)
	hub.Register(ok)

	hub.Broadcast(Message("first"))

	// The healthy client still gets the event
	if ev := recvEvent(t, ok); ev.Content != "first" {
		t.Errorf("healthy client missed broadcast: %+v", ev)
	}

	// The slow client was closed by the hub
	deadline := time.Now().Add(2 * time.Second)
	for !slow.IsClosed() {
		if time.Now().After(deadline) {
			t.Fatal("slow client was not dropped")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Later broadcasts keep flowing
	hub.Broadcast(Message("second"))
	if ev := recvEvent(t, ok); ev.Content != "second" {
		t.Errorf("broadcast after drop failed: %+v", ev)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := testClient(hub)
	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	if err := c.sendRaw([]byte("x")); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed after unregister, got %v", err)
	}
}

func TestSendToClosedClient(t *testing.T) {
	c := testClient(NewHub())
	c.Close()
	c.Close() // idempotent

	if err := c.Send(Thinking()); err != ErrClientClosed {
		t.Errorf("expected ErrClientClosed, got %v", err)
	}
}

func TestToolCallTruncation(t *testing.T) {
	long := make([]byte, maxToolResultBytes+500)
	for i := range long {
		long[i] = 'x'
	}

	ev := ToolCall("shell", nil, string(long))
	if len(ev.Result) != maxToolResultBytes {
		t.Errorf("expected result capped at %d bytes, got %d", maxToolResultBytes, len(ev.Result))
	}
}

func TestToolCallTruncationKeepsValidUTF8(t *testing.T) {
	// Three-byte runes guarantee the byte cap lands mid-sequence.
	long := strings.Repeat("日", maxToolResultBytes)

	ev := ToolCall("shell", nil, long)
	if len(ev.Result) > maxToolResultBytes {
		t.Errorf("result exceeds cap: %d bytes", len(ev.Result))
	}
	if !utf8.ValidString(ev.Result) {
		t.Error("truncated result is not valid UTF-8")
	}

	data, err := json.Marshal(ToolCall("shell", nil, long))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !utf8.ValidString(back.Result) {
		t.Error("result corrupted on the wire")
	}
}

func TestHubCallsSafeAfterShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	c := testClient(hub)
	hub.Register(c)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for !c.IsClosed() {
		if time.Now().After(deadline) {
			t.Fatal("hub did not close clients on shutdown")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A connection goroutine still winding down may call any of these
	// after Run has returned; none may block or panic. Fill the broadcast
	// buffer to prove the done path is taken, not the buffered channel.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(hub.broadcast)+8; i++ {
			hub.Broadcast(Message("late"))
		}
		hub.Unregister(c)
		late := testClient(hub)
		hub.Register(late)
		if !late.IsClosed() {
			t.Error("client registered after shutdown was not closed")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub call blocked after shutdown")
	}
}
