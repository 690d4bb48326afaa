package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"github.com/tmaxmax/go-sse"

	gemchat "github.com/strayblues/gemchat"
	"github.com/strayblues/gemchat/internal/chat"
	"github.com/strayblues/gemchat/internal/models"
)

// ThemeStore persists the UI theme preference between visits.
type ThemeStore interface {
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
}

// SSE event types for real-time updates.
var (
	messageSSEType = sse.Type("message")
	stateSSEType   = sse.Type("state")
	resetSSEType   = sse.Type("reset")
)

const conversationSSETopic = "conversation"

const defaultTheme = "dark"

// Main handles the web interface of the chat client: it renders the page
// from conversation snapshots, accepts sends and resets, and pushes
// incremental updates into connected browsers over server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	conversation *chat.Conversation
	themes       ThemeStore

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a Main instance around the given conversation. It parses
// the embedded HTML templates, configures the SSE server, and registers
// itself for conversation change notifications. The theme store may be nil,
// in which case the default theme is always used.
func NewMain(conversation *chat.Conversation, themes ThemeStore, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		gemchat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	m := Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      []string{sse.DefaultTopic, conversationSSETopic},
				}, true
			},
		},
		templates:    tmpl,
		conversation: conversation,
		themes:       themes,
		logger:       logger.With(slog.String("module", "handlers")),
	}

	conversation.OnUpdate(m.publishUpdate)

	return m, nil
}

// Shutdown gracefully terminates the SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for
// connections to terminate before forcing them closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}

// publishUpdate pushes one changed message plus the current streaming state
// to all subscribers. It is registered as the conversation's update hook and
// runs on the streaming goroutine.
func (m Main) publishUpdate(msg models.Message, streaming bool) {
	div, err := m.renderMessage(msg)
	if err != nil {
		m.logger.Error("Failed to render message",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	e := sse.Message{Type: messageSSEType}
	e.AppendData(div)
	if err := m.sseSrv.Publish(&e, conversationSSETopic); err != nil {
		m.logger.Error("Failed to publish message event", slog.String(errLoggerKey, err.Error()))
	}

	m.publishState(streaming)
}

func (m Main) publishState(streaming bool) {
	state := "idle"
	if streaming {
		state = "streaming"
	}
	e := sse.Message{Type: stateSSEType}
	e.AppendData(state)
	if err := m.sseSrv.Publish(&e, conversationSSETopic); err != nil {
		m.logger.Error("Failed to publish state event", slog.String(errLoggerKey, err.Error()))
	}
}

// renderMessage executes the message partial for a single message, producing
// the div the browser upserts by element ID.
func (m Main) renderMessage(msg models.Message) (string, error) {
	view, err := m.messageView(msg)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "message", view); err != nil {
		return "", fmt.Errorf("failed to execute message template: %w", err)
	}
	return sb.String(), nil
}

// sseResetMessage wraps a full chatbox re-render into a reset event.
func sseResetMessage(data string) *sse.Message {
	e := &sse.Message{Type: resetSSEType}
	e.AppendData(data)
	return e
}
