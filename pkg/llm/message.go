// Package llm holds the wire types shared by the canvas client core and the
// canvas server: chat messages, the node chat payload and error envelopes.
package llm

import "strings"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a single message in a node conversation.
// Messages are immutable once appended to a conversation.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // plain text content
}

// NewTextMessage creates a message with the given role and content.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: text,
	}
}

// NewSystemError creates a system message describing a failure on a
// single line.
func NewSystemError(reason string) Message {
	return NewTextMessage(RoleSystem, "Error: "+OneLine(reason))
}

// ValidRole reports whether role is one of the supported message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	default:
		return false
	}
}

// OneLine collapses any line breaks in s into single spaces.
func OneLine(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\r", "")), " ")
}
