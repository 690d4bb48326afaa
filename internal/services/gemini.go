package services

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/strayblues/gemchat/internal/chat"
)

// Gemini provides chat sessions backed by the Google Gemini API. It is the
// only provider whose sessions are held remotely: the conversation context
// lives on the endpoint, addressed through the SDK's chat handle.
type Gemini struct {
	apiKey       string
	model        string
	systemPrompt string
}

// NewGemini creates a Gemini instance for the given API key and model name.
// The API key may be empty; nothing fails until session creation.
func NewGemini(apiKey, model, systemPrompt string) Gemini {
	return Gemini{
		apiKey:       apiKey,
		model:        model,
		systemPrompt: systemPrompt,
	}
}

// NewSession opens a fresh chat session with the configured model and system
// instruction and no prior history. A missing or invalid credential surfaces
// here, not at construction time.
func (g Gemini) NewSession(ctx context.Context) (chat.Session, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{}
	if g.systemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}

	session, err := client.Chats.Create(ctx, g.model, config, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}

	return &geminiSession{chat: session}, nil
}

type geminiSession struct {
	chat *genai.Chat
}

// Stream sends text to the session and yields the plain text of each
// response chunk. Chunks without text are skipped so the sequence never
// emits an empty fragment.
func (s *geminiSession) Stream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", fmt.Errorf("error receiving response: %w", err))
				return
			}
			fragment := resp.Text()
			if fragment == "" {
				continue
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}
