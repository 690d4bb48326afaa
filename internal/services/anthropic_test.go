package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func anthropicTestSession(t *testing.T, body string) *anthropicSession {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	a := NewAnthropic("key", "model", "", 64)
	a.endpoint = srv.URL
	session, err := a.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return session.(*anthropicSession)
}

func collectFragments(t *testing.T, s *anthropicSession, text string) string {
	t.Helper()
	var reply string
	for fragment, err := range s.Stream(context.Background(), text) {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		reply += fragment
	}
	return reply
}

const anthropicDeltas = "event: content_block_delta\n" +
	`data: {"type":"content_block_delta","delta":{"text":"Hel"}}` + "\n\n" +
	"event: content_block_delta\n" +
	`data: {"type":"content_block_delta","delta":{"text":"lo"}}` + "\n\n"

func TestAnthropicStreamHistory(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "With message_stop",
			body: anthropicDeltas + "event: message_stop\n" + `data: {"type":"message_stop"}` + "\n\n",
		},
		{
			// The body ends after the deltas without a message_stop event;
			// the turn the user saw must still make it into the history.
			name: "Without message_stop",
			body: anthropicDeltas,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := anthropicTestSession(t, tt.body)

			if got := collectFragments(t, session, "hi"); got != "Hello" {
				t.Errorf("Stream() reply = %q, want %q", got, "Hello")
			}

			if len(session.history) != 2 {
				t.Fatalf("history = %d turns, want 2", len(session.history))
			}
			if session.history[0].Role != "user" || session.history[0].Content != "hi" {
				t.Errorf("history[0] = %+v, want the user turn", session.history[0])
			}
			if session.history[1].Role != "assistant" || session.history[1].Content != "Hello" {
				t.Errorf("history[1] = %+v, want the assistant turn", session.history[1])
			}
		})
	}
}
