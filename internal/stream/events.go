// Package stream defines the ordered event protocol emitted to clients
// during a generation, and its SSE wire encoding.
//
// The protocol is a closed tagged union over Event so that conformance is
// statically checkable, with a runtime Sequence guard enforcing the
// ordering grammar:
//
//	sources_retrieved? generation_start (content_chunk | citation)* (generation_complete | error)
//
// Heartbeats may appear anywhere before the terminal event and carry no
// protocol meaning.
package stream

import "context"

// Type discriminates event variants on the wire via the "event" JSON field.
type Type string

// Event types, in protocol order.
const (
	TypeSourcesRetrieved   Type = "sources_retrieved"
	TypeGenerationStart    Type = "generation_start"
	TypeContentChunk       Type = "content_chunk"
	TypeCitation           Type = "citation"
	TypeGenerationComplete Type = "generation_complete"
	TypeError              Type = "error"
	TypeHeartbeat          Type = "heartbeat"
)

// Event is the closed union of protocol events. Each variant is a flat,
// JSON-serializable record carrying its own "event" discriminator.
type Event interface {
	// Kind returns the event's discriminator.
	Kind() Type
}

// SourceRef describes one retrieved chunk in a SourcesRetrieved event.
type SourceRef struct {
	ID           string  `json:"id"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page,omitempty"`
	Section      string  `json:"section,omitempty"`
	Similarity   float64 `json:"similarity"`
}

// SourcesRetrieved announces the chunks grounding this generation.
// Emitted at most once, before generation_start.
type SourcesRetrieved struct {
	Event   Type        `json:"event"`
	Count   int         `json:"count"`
	Sources []SourceRef `json:"sources"`
}

func (SourcesRetrieved) Kind() Type { return TypeSourcesRetrieved }

// NewSourcesRetrieved builds a SourcesRetrieved event.
func NewSourcesRetrieved(sources []SourceRef) SourcesRetrieved {
	return SourcesRetrieved{Event: TypeSourcesRetrieved, Count: len(sources), Sources: sources}
}

// GenerationStart marks the beginning of token streaming. Exactly one per
// generation that reaches the streaming state.
type GenerationStart struct {
	Event    Type   `json:"event"`
	Template string `json:"template"`
}

func (GenerationStart) Kind() Type { return TypeGenerationStart }

// NewGenerationStart builds a GenerationStart event.
func NewGenerationStart(template string) GenerationStart {
	return GenerationStart{Event: TypeGenerationStart, Template: template}
}

// ContentChunk carries one increment of generated text, markers included.
type ContentChunk struct {
	Event Type   `json:"event"`
	Delta string `json:"delta"`
}

func (ContentChunk) Kind() Type { return TypeContentChunk }

// NewContentChunk builds a ContentChunk event.
func NewContentChunk(delta string) ContentChunk {
	return ContentChunk{Event: TypeContentChunk, Delta: delta}
}

// Citation resolves an inline [n] marker to its source. A degraded citation
// (unresolvable marker) has an empty DocumentID and zero confidence.
type Citation struct {
	Event        Type    `json:"event"`
	Number       int     `json:"number"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	Page         int     `json:"page,omitempty"`
	Section      string  `json:"section,omitempty"`
	Excerpt      string  `json:"excerpt"`
	Confidence   float64 `json:"confidence"`
}

func (Citation) Kind() Type { return TypeCitation }

// GenerationComplete is the success terminal event.
type GenerationComplete struct {
	Event         Type    `json:"event"`
	DraftID       string  `json:"draft_id"`
	Confidence    float64 `json:"confidence"`
	CitationCount int     `json:"citation_count"`
	WordCount     int     `json:"word_count"`
}

func (GenerationComplete) Kind() Type { return TypeGenerationComplete }

// Error is the failure terminal event. Code is stable and machine-checkable;
// Message is for humans.
type Error struct {
	Event   Type   `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) Kind() Type { return TypeError }

// NewError builds an Error event.
func NewError(code, message string) Error {
	return Error{Event: TypeError, Code: code, Message: message}
}

// Heartbeat keeps an otherwise silent stream alive. Clients ignore it for
// state purposes.
type Heartbeat struct {
	Event Type `json:"event"`
}

func (Heartbeat) Kind() Type { return TypeHeartbeat }

// NewHeartbeat builds a Heartbeat event.
func NewHeartbeat() Heartbeat {
	return Heartbeat{Event: TypeHeartbeat}
}

// Emitter delivers protocol events to a client, in order.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}
