package prompt

import (
	"log/slog"
	"slices"

	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/retrieval"
)

// System is the fixed system prompt for grounded generation. Its estimated
// cost is covered by Budget.SystemReserve.
const System = `You are a research assistant. Answer using only the numbered sources provided. ` +
	`Cite every claim with an inline marker like [1] that refers to the source number. ` +
	`If the sources do not contain the answer, say so.`

// Budget manages context window limits in estimated tokens.
type Budget struct {
	Total           int // Full context window budget
	ResponseReserve int // Held back for the model's response, never spent on input
	SystemReserve   int // Held back for the system prompt
}

// DefaultBudget returns conservative defaults for Gemini-class models.
func DefaultBudget() Budget {
	return Budget{
		Total:           8192,
		ResponseReserve: 2000,
		SystemReserve:   100,
	}
}

// recencyFloorTokens is the minimum budget granted to the most recent
// history message when chunks and query exhaust the input budget, so the
// kept message carries real content instead of an empty shell. The floor
// may push the assembled input past the nominal budget by at most this
// many tokens.
const recencyFloorTokens = 8

// inputBudget is the token budget available to history plus chunks.
func (b Budget) inputBudget() int {
	n := b.Total - b.ResponseReserve - b.SystemReserve
	if n < 0 {
		return 0
	}
	return n
}

// Spec is the assembled prompt input: a value object handed to the LLM
// client for rendering.
type Spec struct {
	System  string
	History []conversation.Message
	Context []retrieval.Chunk
	Query   string
}

// Builder assembles prompt input within a token budget.
type Builder struct {
	budget Budget
	logger *slog.Logger
}

// NewBuilder creates a Builder. A zero-value budget uses defaults;
// logger may be nil.
func NewBuilder(budget Budget, logger *slog.Logger) *Builder {
	if budget.Total == 0 {
		budget = DefaultBudget()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{budget: budget, logger: logger}
}

// Build assembles the prompt input for one generation.
//
// Retrieved chunks are always included in full; their cost is deducted from
// the input budget first. History is then filled most-recent-first until the
// budget is exhausted, dropping oldest messages (FIFO). The single most
// recent message is never dropped entirely: if it alone exceeds the budget,
// its content is truncated to fit, and it is always granted at least
// recencyFloorTokens even when chunks consume the whole input budget.
//
// Build never fails; an over-budget input degrades to an empty or truncated
// history. The output's estimated token count never exceeds
// Total - ResponseReserve by more than the recency floor.
func (b *Builder) Build(history []conversation.Message, query string, chunks []retrieval.Chunk) Spec {
	chunkTokens := 0
	for _, c := range chunks {
		chunkTokens += Estimate(c.Text)
	}

	remaining := b.budget.inputBudget() - chunkTokens - Estimate(query)
	if len(history) > 0 && remaining < recencyFloorTokens {
		remaining = recencyFloorTokens
	}
	if remaining < 0 {
		remaining = 0
	}

	included := make([]conversation.Message, 0, len(history))
	running := 0
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		msgTokens := Estimate(msg.Content)

		if running+msgTokens > remaining {
			if len(included) == 0 {
				// Recency guarantee: keep the most recent message,
				// truncated to whatever budget is left.
				msg.Content = truncateToTokens(msg.Content, remaining-running)
				included = append(included, msg)
			}
			break
		}

		included = append(included, msg)
		running += msgTokens
	}
	// Restore chronological order (walked newest to oldest above).
	slices.Reverse(included)

	if len(included) < len(history) {
		b.logger.Debug("truncated history to fit budget",
			"original_count", len(history),
			"included_count", len(included),
			"chunk_tokens", chunkTokens,
			"input_budget", b.budget.inputBudget(),
		)
	}

	return Spec{
		System:  System,
		History: included,
		Context: chunks,
		Query:   query,
	}
}

// truncateToTokens cuts text to approximately the given token budget,
// keeping the most recent (trailing) content. The estimator maps one token
// to two runes, so the cut is computed in runes.
func truncateToTokens(text string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	runes := []rune(text)
	keep := tokens * 2
	if len(runes) <= keep {
		return text
	}
	return string(runes[len(runes)-keep:])
}
