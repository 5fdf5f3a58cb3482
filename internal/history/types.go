// Package history persists per-user conversation history in Redis.
package history

import "errors"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged record of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

var (
	// ErrEmptyUser indicates a history operation without a user id.
	ErrEmptyUser = errors.New("user id is required")
	// ErrCorrupt indicates a stored history that cannot be decoded.
	ErrCorrupt = errors.New("stored history is corrupt")
)
