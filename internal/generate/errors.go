package generate

import "errors"

// Sentinel errors for terminal generation failures, checked with errors.Is().
// Everything else (store outages, orphaned citations, invalid conversation
// IDs) is absorbed and degrades functionality instead of failing the stream.
var (
	// ErrNoDocuments indicates retrieval produced no chunks to ground the
	// generation. Terminal, no retry.
	ErrNoDocuments = errors.New("no documents available")

	// ErrRetrieval indicates the retrieval backend failed. Terminal for
	// this request.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrLLM indicates the language model failed or timed out. Terminal for
	// this request; the caller may issue a new one.
	ErrLLM = errors.New("language model failure")
)

// Stable error codes carried on wire error events. Clients branch on the
// code, never on the message.
const (
	CodeNoDocuments = "no_documents"
	CodeRetrieval   = "retrieval_error"
	CodeLLM         = "llm_error"
)
