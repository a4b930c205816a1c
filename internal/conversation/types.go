// Package conversation provides ephemeral, TTL-bound persistence for
// per-(session, knowledge base) message history.
//
// Histories are append-only and expire 24 hours after the last write.
// The store degrades gracefully: a missing or unreachable backend yields an
// empty history rather than a failed request. This is a deliberate
// availability-over-consistency choice; concurrent appends to the same key
// are last-writer-wins at the granularity of the full history list.
package conversation

import "time"

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Citation links an inline [n] marker in assistant content to its source.
// Numbers are 1-based and unique within a single response.
type Citation struct {
	Number       int     `json:"number"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page,omitempty"`
	Section      string  `json:"section,omitempty"`
	Excerpt      string  `json:"excerpt"`
	CharStart    int     `json:"char_start"`
	CharEnd      int     `json:"char_end"`
	Confidence   float64 `json:"confidence"`
}

// Message is a single conversation turn. Immutable once appended.
type Message struct {
	Role       string     `json:"role"` // "user" | "assistant"
	Content    string     `json:"content"`
	Citations  []Citation `json:"citations,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
	Incomplete bool       `json:"incomplete,omitempty"` // true for partial content persisted after a client disconnect
	Timestamp  time.Time  `json:"timestamp"`
}
