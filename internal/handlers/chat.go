package handlers

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/strayblues/gemchat/internal/chat"
	"github.com/strayblues/gemchat/internal/models"
)

type messageView struct {
	ID        string
	Role      string
	HTML      template.HTML
	Timestamp time.Time
	IsError   bool
	Empty     bool
}

type homePageData struct {
	Messages  []messageView
	Streaming bool
	Typing    bool
	Theme     string
}

// HandleHome renders the chat page from the current conversation snapshot
// and the persisted theme preference. The page is a pure function of that
// snapshot; all later changes arrive over SSE.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	snap := m.conversation.Snapshot()

	views := make([]messageView, 0, len(snap.Messages))
	for _, msg := range snap.Messages {
		view, err := m.messageView(msg)
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		views = append(views, view)
	}

	data := homePageData{
		Messages:  views,
		Streaming: snap.Streaming,
		Typing:    typing(snap),
		Theme:     m.theme(r),
	}
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleChats accepts a user message through the "message" form field and
// submits it to the conversation. A blank message is a bad request; a send
// while a response is still streaming is rejected with 409 rather than
// queued. Accepted sends return 204: the resulting messages reach the
// browser through SSE, not through this response.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := strings.TrimSpace(r.FormValue("message"))
	if msg == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	if !m.conversation.Send(r.Context(), msg) {
		http.Error(w, "A response is already streaming", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleReset discards the conversation and seeds a fresh one, then pushes a
// full re-render to all connected browsers.
func (m Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := m.conversation.Reset(r.Context())

	var sb strings.Builder
	for _, msg := range snap.Messages {
		div, err := m.renderMessage(msg)
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		sb.WriteString(div)
	}

	e := sseResetMessage(sb.String())
	if err := m.sseSrv.Publish(e, conversationSSETopic); err != nil {
		m.logger.Error("Failed to publish reset event", slog.String(errLoggerKey, err.Error()))
	}
	m.publishState(false)

	w.WriteHeader(http.StatusNoContent)
}

// HandleTheme reads (GET) or stores (POST) the theme preference. Only
// "light" and "dark" are accepted.
func (m Main) HandleTheme(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		_, _ = w.Write([]byte(m.theme(r)))
	case http.MethodPost:
		theme := r.FormValue("theme")
		if theme != "light" && theme != "dark" {
			http.Error(w, "Unknown theme", http.StatusBadRequest)
			return
		}
		if m.themes != nil {
			if err := m.themes.SetTheme(r.Context(), theme); err != nil {
				m.logger.Error("Failed to store theme", slog.String(errLoggerKey, err.Error()))
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSSE serves the event stream browsers subscribe to for incremental
// updates.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

func (m Main) messageView(msg models.Message) (messageView, error) {
	rendered, err := models.RenderText(msg)
	if err != nil {
		return messageView{}, err
	}
	return messageView{
		ID:        msg.ID,
		Role:      string(msg.Role),
		HTML:      template.HTML(rendered), //nolint:gosec // model output is rendered through goldmark, user text is escaped
		Timestamp: msg.Timestamp,
		IsError:   msg.IsError,
		Empty:     msg.Text == "",
	}, nil
}

func (m Main) theme(r *http.Request) string {
	if m.themes == nil {
		return defaultTheme
	}
	theme, err := m.themes.Theme(r.Context())
	if err != nil {
		m.logger.Error("Failed to load theme", slog.String(errLoggerKey, err.Error()))
		return defaultTheme
	}
	if theme == "" {
		return defaultTheme
	}
	return theme
}

// typing reports whether the "model is typing" indicator should show: a
// stream is active and nothing of the response has been rendered yet.
func typing(snap chat.Snapshot) bool {
	if !snap.Streaming || len(snap.Messages) == 0 {
		return false
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role == models.RoleUser {
		return true
	}
	return last.Role == models.RoleModel && last.Text == "" && !last.IsError
}
