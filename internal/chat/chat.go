package chat

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/strayblues/gemchat/internal/models"
)

// Session is a stateful handle to a conversation context maintained by a
// model provider. Stream sends one user message to the session and returns a
// lazy, finite sequence of non-empty text fragments in emission order. Any
// underlying fault (network, quota, malformed response) terminates the
// sequence with exactly one error; no retries are performed and the sequence
// is not restartable.
type Session interface {
	Stream(ctx context.Context, text string) iter.Seq2[string, error]
}

// Provider creates sessions against a remote model endpoint. Each session is
// bound to the provider's fixed model identifier and system instruction.
type Provider interface {
	NewSession(ctx context.Context) (Session, error)
}

// Archive persists the transcript and is optional. It is presentation-side
// only: a restored transcript is displayed as-is, the remote session context
// is not reconstructed from it. Implementations must be safe for calls from
// the streaming goroutine.
type Archive interface {
	Messages(ctx context.Context) ([]models.Message, error)
	AppendMessage(ctx context.Context, msg models.Message) error
	UpdateMessage(ctx context.Context, msg models.Message) error
	Clear(ctx context.Context) error
}

// Snapshot is a copy of the conversation state at a point in time.
type Snapshot struct {
	Messages  []models.Message
	Streaming bool
}

// UpdateFunc is called after every streaming state change with a copy of the
// affected message and the current streaming flag.
type UpdateFunc func(msg models.Message, streaming bool)

var errNoSession = errors.New("no active session")

// ErrorNotice is the generic failure text surfaced into the conversation
// when a stream fails mid-send.
const ErrorNotice = "Something went wrong while generating a response. Please try again."

// Conversation is the authoritative store for the message list and the
// streaming flag. At most one stream may be in flight at a time; a second
// send while streaming is rejected rather than queued. A generation counter
// guards against an in-flight stream writing into a conversation that has
// been reset underneath it: stale fragments are discarded.
type Conversation struct {
	provider Provider
	archive  Archive
	greeting string
	logger   *slog.Logger

	mu         sync.Mutex
	onUpdate   UpdateFunc
	session    Session
	generation uint64
	messages   []models.Message
	streaming  bool
	resetting  bool
}

// NewConversation creates a Conversation backed by the given provider. The
// archive may be nil, in which case the transcript lives only in memory. The
// greeting seeds the conversation on every reset.
func NewConversation(provider Provider, archive Archive, greeting string, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversation{
		provider: provider,
		archive:  archive,
		greeting: greeting,
		logger:   logger.With(slog.String("module", "chat")),
	}
}

// OnUpdate registers fn to receive per-message change notifications. Reset
// and Restore do not notify; callers of those re-render from the returned
// snapshot instead.
func (c *Conversation) OnUpdate(fn UpdateFunc) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Snapshot returns a copy of the current messages and streaming flag.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]models.Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{Messages: msgs, Streaming: c.streaming}
}

// Reset discards the conversation and starts over: any in-flight stream is
// orphaned (its remaining fragments are discarded via the generation
// counter), the message list is cleared, a fresh session is installed, and a
// single greeting message is seeded. Sends are rejected for the whole
// duration of the reset, including the session-creation round-trip, so no
// accepted message can be destroyed by the reset overwriting state. If
// session creation fails the greeting is replaced by an error-flagged
// message describing the failure and the conversation stays usable; a later
// Reset may succeed. The resulting snapshot always holds exactly one message
// with streaming off.
func (c *Conversation) Reset(ctx context.Context) Snapshot {
	c.mu.Lock()
	c.generation++
	c.session = nil
	c.messages = nil
	c.streaming = false
	c.resetting = true
	c.mu.Unlock()

	session, err := c.provider.NewSession(ctx)

	first := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleModel,
		Timestamp: time.Now(),
	}
	if err != nil {
		c.logger.Error("Failed to create session", slog.String("err", err.Error()))
		first.Text = "Failed to start a chat session: " + err.Error()
		first.IsError = true
	} else {
		first.Text = c.greeting
	}

	// The archive is rewritten before sends are let back in, so no
	// concurrent append can land between the clear and the seed.
	if c.archive != nil {
		if err := c.archive.Clear(ctx); err != nil {
			c.logger.Error("Failed to clear archive", slog.String("err", err.Error()))
		}
		c.persistAppend(ctx, first)
	}

	c.mu.Lock()
	c.session = session
	c.messages = []models.Message{first}
	c.resetting = false
	c.mu.Unlock()

	return c.Snapshot()
}

// Restore loads a previously archived transcript and installs a fresh
// session for it. With no archive, or an empty one, it behaves like Reset.
// The restored session does not carry the archived context; it only lets the
// user pick up reading where they left off.
func (c *Conversation) Restore(ctx context.Context) Snapshot {
	if c.archive == nil {
		return c.Reset(ctx)
	}

	c.mu.Lock()
	c.resetting = true
	c.mu.Unlock()

	msgs, err := c.archive.Messages(ctx)
	if err != nil {
		c.logger.Error("Failed to load archived transcript", slog.String("err", err.Error()))
		return c.Reset(ctx)
	}
	if len(msgs) == 0 {
		return c.Reset(ctx)
	}

	session, err := c.provider.NewSession(ctx)
	if err != nil {
		// Leave the session empty; the next send will surface the failure.
		c.logger.Error("Failed to create session", slog.String("err", err.Error()))
	}

	c.mu.Lock()
	c.generation++
	c.session = session
	c.messages = msgs
	c.streaming = false
	c.resetting = false
	c.mu.Unlock()

	return c.Snapshot()
}

// Send submits a user message. It reports false without changing any state
// when the trimmed text is empty, a stream is already active, or a reset is
// in progress. Otherwise it
// appends the user message plus an empty placeholder model message, raises
// the streaming flag, and consumes the session stream in the background,
// growing the placeholder fragment by fragment. On completion the flag is
// cleared; on failure an error-flagged message is appended after the partial
// content, which is kept as-is.
func (c *Conversation) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.streaming || c.resetting {
		c.mu.Unlock()
		return false
	}

	now := time.Now()
	userMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Text:      text,
		Timestamp: now,
	}
	placeholder := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleModel,
		Timestamp: now,
	}
	c.messages = append(c.messages, userMsg, placeholder)
	c.streaming = true
	gen := c.generation
	session := c.session
	c.mu.Unlock()

	c.persistAppend(ctx, userMsg)
	c.persistAppend(ctx, placeholder)
	c.notify(userMsg, true)
	c.notify(placeholder, true)

	// The stream deliberately outlives the originating request: there is no
	// cancellation or timeout, it runs to completion or failure.
	go c.consume(gen, session, text, placeholder.ID)

	return true
}

func (c *Conversation) consume(gen uint64, session Session, text, placeholderID string) {
	ctx := context.Background()

	if session == nil {
		c.fail(ctx, gen, errNoSession)
		return
	}

	for fragment, err := range session.Stream(ctx, text) {
		if err != nil {
			c.logger.Error("Stream failed", slog.String("err", err.Error()))
			c.fail(ctx, gen, err)
			return
		}
		if !c.apply(ctx, gen, placeholderID, fragment) {
			return
		}
	}

	c.finish(gen, placeholderID)
}

// apply accumulates one fragment onto the placeholder, in emission order.
// It reports false when the conversation was reset since the stream started,
// which drops the remaining fragments.
func (c *Conversation) apply(ctx context.Context, gen uint64, placeholderID, fragment string) bool {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return false
	}
	idx := c.indexOf(placeholderID)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.messages[idx].Text += fragment
	updated := c.messages[idx]
	c.mu.Unlock()

	c.persistUpdate(ctx, updated)
	c.notify(updated, true)
	return true
}

func (c *Conversation) finish(gen uint64, placeholderID string) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.streaming = false
	var final models.Message
	if idx := c.indexOf(placeholderID); idx >= 0 {
		final = c.messages[idx]
	}
	c.mu.Unlock()

	c.notify(final, false)
}

func (c *Conversation) fail(ctx context.Context, gen uint64, cause error) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	errMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleModel,
		Text:      ErrorNotice,
		Timestamp: time.Now(),
		IsError:   true,
	}
	if errors.Is(cause, errNoSession) {
		errMsg.Text = "No active chat session. Reset the conversation to start a new one."
	}
	c.messages = append(c.messages, errMsg)
	c.streaming = false
	c.mu.Unlock()

	c.persistAppend(ctx, errMsg)
	c.notify(errMsg, false)
}

// indexOf must be called with the lock held. The placeholder is almost
// always the last message, so the scan runs from the tail.
func (c *Conversation) indexOf(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversation) notify(msg models.Message, streaming bool) {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn(msg, streaming)
	}
}

func (c *Conversation) persistAppend(ctx context.Context, msg models.Message) {
	if c.archive == nil {
		return
	}
	if err := c.archive.AppendMessage(ctx, msg); err != nil {
		c.logger.Error("Failed to archive message", slog.String("err", err.Error()))
	}
}

func (c *Conversation) persistUpdate(ctx context.Context, msg models.Message) {
	if c.archive == nil {
		return
	}
	if err := c.archive.UpdateMessage(ctx, msg); err != nil {
		c.logger.Error("Failed to update archived message", slog.String("err", err.Error()))
	}
}
