// Package llm provides the token stream collaborator contract and its
// Genkit-backed implementation, plus prompt rendering.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/prompt"
)

// TokenFunc receives one streamed token. Returning an error aborts the stream.
type TokenFunc func(ctx context.Context, token string) error

// Streamer produces a terminable token stream for a rendered prompt.
// The orchestrator treats the model as a black box behind this interface.
type Streamer interface {
	// Stream generates a response, invoking onToken for each token in
	// order, and returns the complete text. The stream stops when ctx is
	// canceled or onToken returns an error.
	Stream(ctx context.Context, rendered string, onToken TokenFunc) (string, error)
}

// Render formats a prompt spec into the model input string. Deliberately
// thin: all budgeting decisions were made by the builder.
func Render(spec prompt.Spec) string {
	var sb strings.Builder

	sb.WriteString(spec.System)
	sb.WriteString("\n\nSources:\n")
	for i, c := range spec.Context {
		sb.WriteString(fmt.Sprintf("[%d] %s", i+1, c.DocumentName))
		if c.Page > 0 {
			sb.WriteString(fmt.Sprintf(", p.%d", c.Page))
		}
		if c.Section != "" {
			sb.WriteString(", " + c.Section)
		}
		sb.WriteString(": ")
		sb.WriteString(c.Text)
		sb.WriteString("\n")
	}

	if len(spec.History) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, msg := range spec.History {
			switch msg.Role {
			case conversation.RoleAssistant:
				sb.WriteString("Assistant: ")
			default:
				sb.WriteString("User: ")
			}
			sb.WriteString(msg.Content)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nUser: ")
	sb.WriteString(spec.Query)
	sb.WriteString("\nAssistant:")
	return sb.String()
}
