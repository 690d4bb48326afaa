package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/strayblues/gemchat/internal/chat"
)

// Ollama provides chat sessions backed by a local or remote Ollama server.
// Ollama has no server-side session concept, so each session carries its own
// conversation history and replays it with every request.
type Ollama struct {
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama creates an Ollama instance for the given host URL and model
// name. If the host URL cannot be parsed an error is returned.
func NewOllama(host, model, systemPrompt string) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("failed to parse ollama host: %w", err)
	}

	return Ollama{
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}, nil
}

// NewSession starts a session seeded with the system prompt.
func (o Ollama) NewSession(context.Context) (chat.Session, error) {
	history := []api.Message{}
	if o.systemPrompt != "" {
		history = append(history, api.Message{
			Role:    "system",
			Content: o.systemPrompt,
		})
	}
	return &ollamaSession{provider: o, history: history}, nil
}

// ollamaSession accumulates the exchange client-side. The conversation store
// guarantees a single in-flight stream per session, so no locking is needed.
type ollamaSession struct {
	provider Ollama
	history  []api.Message
}

// Stream sends text along with the accumulated history and yields each
// non-empty response chunk. On clean completion the exchange is appended to
// the history; a failed exchange is not, so the next send does not replay a
// half-finished turn.
func (s *ollamaSession) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := append(append([]api.Message{}, s.history...), api.Message{
			Role:    "user",
			Content: text,
		})

		stream := true
		req := api.ChatRequest{
			Model:    s.provider.model,
			Messages: msgs,
			Stream:   &stream,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var reply strings.Builder
		if err := s.provider.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			fragment := res.Message.Content
			if fragment == "" {
				return nil
			}
			reply.WriteString(fragment)
			if !yield(fragment, nil) {
				cancel()
			}
			return nil
		}); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}

		s.history = append(msgs, api.Message{
			Role:    "assistant",
			Content: reply.String(),
		})
	}
}
