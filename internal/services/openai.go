package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/strayblues/gemchat/internal/chat"
)

// OpenAI provides chat sessions backed by the OpenAI chat completions API.
// Like Ollama, the conversation context is held client-side and replayed
// with every request.
type OpenAI struct {
	model        string
	systemPrompt string

	client *goopenai.Client
}

// NewOpenAI creates an OpenAI instance with the specified API key and model
// name.
func NewOpenAI(apiKey, model, systemPrompt string) OpenAI {
	return OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		client:       goopenai.NewClient(apiKey),
	}
}

// NewSession starts a session seeded with the system prompt.
func (o OpenAI) NewSession(context.Context) (chat.Session, error) {
	history := []goopenai.ChatCompletionMessage{}
	if o.systemPrompt != "" {
		history = append(history, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: o.systemPrompt,
		})
	}
	return &openAISession{provider: o, history: history}, nil
}

type openAISession struct {
	provider OpenAI
	history  []goopenai.ChatCompletionMessage
}

// Stream sends text along with the accumulated history and yields each
// non-empty completion delta. The exchange is appended to the history only
// on clean completion.
func (s *openAISession) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		msgs := append(append([]goopenai.ChatCompletionMessage{}, s.history...), goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleUser,
			Content: text,
		})

		req := goopenai.ChatCompletionRequest{
			Model:    s.provider.model,
			Messages: msgs,
			Stream:   true,
		}

		stream, err := s.provider.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			fragment := response.Choices[0].Delta.Content
			if fragment == "" {
				continue
			}
			reply.WriteString(fragment)
			if !yield(fragment, nil) {
				return
			}
		}

		s.history = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleAssistant,
			Content: reply.String(),
		})
	}
}
