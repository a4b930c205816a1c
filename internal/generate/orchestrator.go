// Package generate coordinates a single generation: retrieval, prompt
// assembly, token streaming with citation extraction, protocol emission,
// and conversation persistence.
//
// Each generation is one Run call on one goroutine. Runs share no mutable
// state; the citation extractor and its buffer are constructed per run.
// Cancellation (client disconnect) is observed at per-token granularity.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citedraft/citedraft/internal/citation"
	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/llm"
	"github.com/citedraft/citedraft/internal/prompt"
	"github.com/citedraft/citedraft/internal/retrieval"
	"github.com/citedraft/citedraft/internal/stream"
)

// PromptTemplate names the prompt layout announced in generation_start.
const PromptTemplate = "grounded-cited/v1"

// excerptMaxRunes bounds the excerpt carried on citation events.
const excerptMaxRunes = 240

// uncitedConfidence is reported when a completed response cites nothing.
const uncitedConfidence = 0.5

// Request describes one generation. Transient; nothing here is persisted
// beyond the request itself.
type Request struct {
	KBID            string
	Message         string
	ConversationID  string   // session identity for history; required unless SingleTurn
	SelectedSources []string // chunk IDs that bypass retrieval when set
	SingleTurn      bool     // no history load, no persistence
}

// Config contains all required orchestrator dependencies.
type Config struct {
	Retriever retrieval.Retriever
	Builder   *prompt.Builder
	Store     conversation.Store
	LLM       llm.Streamer
	Logger    *slog.Logger

	TopK              int           // chunks per retrieval (0 = 5)
	StreamTimeout     time.Duration // ceiling on the streaming state (0 = 60s)
	HeartbeatInterval time.Duration // silence threshold for heartbeats (0 = disabled)
}

// validate checks required dependencies.
func (cfg Config) validate() error {
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Builder == nil {
		return errors.New("prompt builder is required")
	}
	if cfg.Store == nil {
		return errors.New("conversation store is required")
	}
	if cfg.LLM == nil {
		return errors.New("llm streamer is required")
	}
	return nil
}

// Orchestrator drives generations. Safe for concurrent use; all per-run
// state lives on the Run stack.
type Orchestrator struct {
	retriever retrieval.Retriever
	builder   *prompt.Builder
	store     conversation.Store
	llm       llm.Streamer
	logger    *slog.Logger

	topK              int
	streamTimeout     time.Duration
	heartbeatInterval time.Duration
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	timeout := cfg.StreamTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Orchestrator{
		retriever:         cfg.Retriever,
		builder:           cfg.Builder,
		store:             cfg.Store,
		llm:               cfg.LLM,
		logger:            logger,
		topK:              topK,
		streamTimeout:     timeout,
		heartbeatInterval: cfg.HeartbeatInterval,
	}, nil
}

// Run executes one generation against the emitter, returning the terminal
// state and, for StateFailed, the terminal error. All user-visible failures
// are also reported on the stream as error events before returning.
//
// ctx carries the client connection: its cancellation means the client
// disconnected and moves the run to StateCancelled with a best-effort
// partial persist.
func (o *Orchestrator) Run(ctx context.Context, req Request, em stream.Emitter) (State, error) {
	logger := o.logger.With("kb_id", req.KBID, "conversation_id", req.ConversationID)

	// Retrieving
	chunks, err := o.retrieve(ctx, req)
	if err != nil {
		return o.fail(ctx, em, logger, err)
	}
	if len(chunks) == 0 {
		return o.fail(ctx, em, logger, fmt.Errorf("%w: knowledge base %q", ErrNoDocuments, req.KBID))
	}

	if err := em.Emit(ctx, stream.NewSourcesRetrieved(sourceRefs(chunks))); err != nil {
		return o.cancelled(ctx, req, "", nil, logger)
	}

	// BuildingContext
	var history []conversation.Message
	if !req.SingleTurn && req.ConversationID != "" {
		// Unknown or malformed conversation IDs simply have no stored
		// history; the store returns empty rather than erroring.
		history = o.store.History(ctx, req.ConversationID, req.KBID)
	}
	spec := o.builder.Build(history, req.Message, chunks)

	if err := em.Emit(ctx, stream.NewGenerationStart(PromptTemplate)); err != nil {
		return o.cancelled(ctx, req, "", nil, logger)
	}

	// Streaming
	hbCancel := o.startHeartbeat(ctx, em)
	defer hbCancel()

	sctx, cancel := context.WithTimeout(ctx, o.streamTimeout)
	defer cancel()

	extractor := citation.NewExtractor(chunks)
	var content strings.Builder
	var citations []conversation.Citation
	seen := make(map[int]bool)

	onToken := func(tctx context.Context, token string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := em.Emit(tctx, stream.NewContentChunk(token)); err != nil {
			return err
		}
		content.WriteString(token)

		for _, draft := range extractor.Feed(token) {
			ev, cit := o.resolveDraft(draft, logger)
			if err := em.Emit(tctx, ev); err != nil {
				return err
			}
			if !seen[cit.Number] {
				seen[cit.Number] = true
				citations = append(citations, cit)
			}
		}
		return nil
	}

	finalText, err := o.llm.Stream(sctx, llm.Render(spec), onToken)
	if err != nil {
		if ctx.Err() != nil {
			// Client disconnect: no further events, best-effort partial persist.
			return o.cancelled(ctx, req, content.String(), citations, logger)
		}
		if sctx.Err() != nil {
			return o.fail(ctx, em, logger, fmt.Errorf("%w: generation exceeded %v", ErrLLM, o.streamTimeout))
		}
		return o.fail(ctx, em, logger, fmt.Errorf("%w: %w", ErrLLM, err))
	}

	// Finalizing
	return o.finalize(ctx, req, em, finalText, content.String(), citations, logger)
}

// retrieve loads chunks, honoring selected sources over vector search.
func (o *Orchestrator) retrieve(ctx context.Context, req Request) ([]retrieval.Chunk, error) {
	if len(req.SelectedSources) > 0 {
		chunks, err := o.retriever.ChunksByID(ctx, req.KBID, req.SelectedSources)
		if err != nil {
			return nil, fmt.Errorf("%w: loading selected sources: %w", ErrRetrieval, err)
		}
		return chunks, nil
	}

	chunks, err := o.retriever.Retrieve(ctx, req.KBID, req.Message, o.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}
	return chunks, nil
}

// finalize computes response metrics, emits the terminal event, and
// persists the completed turn.
func (o *Orchestrator) finalize(ctx context.Context, req Request, em stream.Emitter,
	finalText, streamed string, citations []conversation.Citation, logger *slog.Logger) (State, error) {

	// Citation offsets index the streamed tokens, so the streamed
	// accumulation is what gets persisted. The provider's assembled final
	// text is used only when nothing was streamed, where no offsets exist
	// to misalign.
	content := streamed
	if content == "" {
		content = finalText
	} else if finalText != "" && finalText != streamed {
		logger.Debug("final text differs from streamed tokens, keeping streamed",
			"streamed_len", len(streamed), "final_len", len(finalText))
	}

	draftID := uuid.New().String()
	confidence := overallConfidence(citations)
	complete := stream.GenerationComplete{
		Event:         stream.TypeGenerationComplete,
		DraftID:       draftID,
		Confidence:    confidence,
		CitationCount: len(citations),
		WordCount:     len(strings.Fields(content)),
	}

	if err := em.Emit(ctx, complete); err != nil {
		return o.cancelled(ctx, req, content, citations, logger)
	}

	if !req.SingleTurn {
		now := time.Now().UTC()
		o.store.Append(ctx, req.ConversationID, req.KBID,
			conversation.Message{Role: conversation.RoleUser, Content: req.Message, Timestamp: now},
			conversation.Message{
				Role:       conversation.RoleAssistant,
				Content:    content,
				Citations:  citations,
				Confidence: confidence,
				Timestamp:  now,
			},
		)
	}

	logger.Info("generation complete",
		"draft_id", draftID,
		"citations", len(citations),
		"words", complete.WordCount,
	)
	return StateComplete, nil
}

// fail emits the error event and returns StateFailed. Emission is
// best-effort: the client may already be gone.
func (o *Orchestrator) fail(ctx context.Context, em stream.Emitter, logger *slog.Logger, err error) (State, error) {
	code := CodeLLM
	switch {
	case errors.Is(err, ErrNoDocuments):
		code = CodeNoDocuments
	case errors.Is(err, ErrRetrieval):
		code = CodeRetrieval
	}

	logger.Warn("generation failed", "code", code, "error", err)
	if emitErr := em.Emit(ctx, stream.NewError(code, userMessage(code))); emitErr != nil {
		logger.Debug("error event not delivered", "error", emitErr)
	}
	return StateFailed, err
}

// cancelled handles a client disconnect: no further events, one best-effort
// persist of the accumulated partial content tagged incomplete.
func (o *Orchestrator) cancelled(ctx context.Context, req Request, partial string,
	citations []conversation.Citation, logger *slog.Logger) (State, error) {

	if !req.SingleTurn && partial != "" {
		// The request context is gone; give the persist its own deadline.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		now := time.Now().UTC()
		o.store.Append(pctx, req.ConversationID, req.KBID,
			conversation.Message{Role: conversation.RoleUser, Content: req.Message, Timestamp: now},
			conversation.Message{
				Role:       conversation.RoleAssistant,
				Content:    partial,
				Citations:  citations,
				Incomplete: true,
				Timestamp:  now,
			},
		)
	}

	logger.Info("generation cancelled", "partial_len", len(partial))
	return StateCancelled, nil
}

// startHeartbeat launches the heartbeat watcher when the emitter supports
// it. The returned stop function cancels the watcher and waits for it.
func (o *Orchestrator) startHeartbeat(ctx context.Context, em stream.Emitter) func() {
	pe, ok := em.(stream.PulseEmitter)
	if !ok || o.heartbeatInterval <= 0 {
		return func() {}
	}

	hctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		stream.NewHeartbeater(pe, o.heartbeatInterval, o.logger).Run(hctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// resolveDraft maps an extractor draft to its wire event and persisted
// citation. Orphaned markers degrade instead of failing the stream.
func (o *Orchestrator) resolveDraft(d citation.Draft, logger *slog.Logger) (stream.Citation, conversation.Citation) {
	ev := stream.Citation{Event: stream.TypeCitation, Number: d.Number}
	cit := conversation.Citation{Number: d.Number, CharStart: d.Start, CharEnd: d.End}

	if d.Source == nil {
		logger.Debug("orphaned citation marker", "number", d.Number)
		return ev, cit
	}

	confidence := clamp01(d.Source.Similarity)
	excerpt := truncateRunes(d.Source.Text, excerptMaxRunes)

	ev.DocumentID = d.Source.DocumentID
	ev.DocumentName = d.Source.DocumentName
	ev.Page = d.Source.Page
	ev.Section = d.Source.Section
	ev.Excerpt = excerpt
	ev.Confidence = confidence

	cit.DocumentID = d.Source.DocumentID
	cit.DocumentName = d.Source.DocumentName
	cit.Page = d.Source.Page
	cit.Section = d.Source.Section
	cit.Excerpt = excerpt
	cit.Confidence = confidence
	return ev, cit
}

// sourceRefs converts chunks to their wire representation.
func sourceRefs(chunks []retrieval.Chunk) []stream.SourceRef {
	refs := make([]stream.SourceRef, len(chunks))
	for i, c := range chunks {
		refs[i] = stream.SourceRef{
			ID:           c.ID,
			DocumentID:   c.DocumentID,
			DocumentName: c.DocumentName,
			Page:         c.Page,
			Section:      c.Section,
			Similarity:   c.Similarity,
		}
	}
	return refs
}

// overallConfidence is the mean confidence of resolved citations, or
// uncitedConfidence when the response cites nothing.
func overallConfidence(citations []conversation.Citation) float64 {
	resolved := 0
	sum := 0.0
	for _, c := range citations {
		if c.DocumentID == "" {
			continue
		}
		resolved++
		sum += c.Confidence
	}
	if resolved == 0 {
		return uncitedConfidence
	}
	return sum / float64(resolved)
}

// userMessage returns the human-readable message for a wire error code.
func userMessage(code string) string {
	switch code {
	case CodeNoDocuments:
		return "No documents are available to answer this question. Add documents to the knowledge base and try again."
	case CodeRetrieval:
		return "Source retrieval failed. Please try again."
	default:
		return "The model could not complete this response. Please try again."
	}
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
