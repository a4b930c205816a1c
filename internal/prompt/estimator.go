// Package prompt assembles token-budgeted prompt input for generation.
//
// The builder produces a value object (Spec), never a formatted prompt
// string; string rendering is a thin concern owned by the LLM client.
package prompt

import (
	"unicode/utf8"

	"github.com/citedraft/citedraft/internal/conversation"
)

// Estimate provides a rough token count for text.
// Uses rune count divided by 2 as a conservative estimate that works for
// both English (~4 chars/token) and CJK (~1.5 chars/token) text.
// Non-empty text always counts as at least one token.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 2
	if n == 0 {
		return 1
	}
	return n
}

// EstimateMessages estimates total tokens across messages.
func EstimateMessages(msgs []conversation.Message) int {
	total := 0
	for _, msg := range msgs {
		total += Estimate(msg.Content)
	}
	return total
}
