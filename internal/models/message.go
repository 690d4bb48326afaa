package models

import "time"

// Role represents the author of a message.
type Role string

const (
	// RoleUser represents a message typed by the user. User messages are
	// rendered literally, never as markdown.
	RoleUser Role = "user"
	// RoleModel represents a message authored by the language model,
	// including error notices surfaced into the conversation.
	RoleModel Role = "model"
)

// Message represents an individual entry in the conversation. Identity is
// stable once created; Text is the only field mutated after creation, and
// only while the message is the active streaming placeholder.
type Message struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time

	// IsError marks model-role messages that carry a failure notice
	// instead of generated content.
	IsError bool
}
