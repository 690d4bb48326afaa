package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/tmaxmax/go-sse"

	"github.com/strayblues/gemchat/internal/chat"
)

const anthropicAPIEndpoint = "https://api.anthropic.com/v1"

// Anthropic provides chat sessions backed by the Anthropic messages API,
// consumed directly over HTTP with SSE streaming. The conversation context
// is held client-side and replayed with every request.
type Anthropic struct {
	apiKey       string
	model        string
	systemPrompt string
	maxTokens    int
	endpoint     string

	client *http.Client
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropic creates an Anthropic instance with the specified API key,
// model name, and maximum token limit.
func NewAnthropic(apiKey, model, systemPrompt string, maxTokens int) Anthropic {
	return Anthropic{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		endpoint:     anthropicAPIEndpoint,
		client:       &http.Client{},
	}
}

// NewSession starts a session with an empty client-side history. The system
// prompt travels in the request's dedicated system field rather than in the
// history.
func (a Anthropic) NewSession(context.Context) (chat.Session, error) {
	return &anthropicSession{provider: a}, nil
}

type anthropicSession struct {
	provider Anthropic
	history  []anthropicMessage
}

// Stream sends text along with the accumulated history and yields the text
// of each content block delta. The exchange is appended to the history only
// on clean completion.
func (s *anthropicSession) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := append(append([]anthropicMessage{}, s.history...), anthropicMessage{
			Role:    "user",
			Content: text,
		})

		reqBody := anthropicChatRequest{
			Model:     s.provider.model,
			Messages:  msgs,
			System:    s.provider.systemPrompt,
			MaxTokens: s.provider.maxTokens,
			Stream:    true,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshaling request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.provider.endpoint+"/messages", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", fmt.Errorf("error creating request: %w", err))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", s.provider.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := s.provider.client.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		var reply strings.Builder
		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading response: %w", err))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", fmt.Errorf("error unmarshaling error: %w", err))
					return
				}
				yield("", fmt.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				s.history = append(msgs, anthropicMessage{
					Role:    "assistant",
					Content: reply.String(),
				})
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", fmt.Errorf("error unmarshaling response: %w", err))
					return
				}
				if res.Delta.Text == "" {
					continue
				}
				reply.WriteString(res.Delta.Text)
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				continue
			}
		}

		// Some responses end without a message_stop event. The user saw the
		// accumulated reply, so the turn is kept; dropping it would make the
		// next send replay history without this exchange.
		if reply.Len() > 0 {
			s.history = append(msgs, anthropicMessage{
				Role:    "assistant",
				Content: reply.String(),
			})
		}
	}
}
