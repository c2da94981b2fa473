// Package types defines the shared types used across all contexto packages.
//
// These types form the lingua franca between providers, context layers, and
// the session orchestrator. They are intentionally minimal — each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

// Conversation roles used in session transcripts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a session transcript. It doubles as
// the wire format of the transcript files the operator CLI reads, hence the
// JSON tags.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// UserContents returns the contents of the user-role messages, in order.
// Quality analysis, memory extraction, and momentum scoring all read only the
// user's side of a session.
func UserContents(messages []Message) []string {
	var out []string
	for _, m := range messages {
		if m.Role == RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}
