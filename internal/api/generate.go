package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/citedraft/citedraft/internal/conversation"
	"github.com/citedraft/citedraft/internal/generate"
	"github.com/citedraft/citedraft/internal/stream"
)

// maxRequestBody bounds generation request bodies.
const maxRequestBody = 1 << 20 // 1MB

// GenerateRequest is the JSON body for the generation endpoints.
type GenerateRequest struct {
	KBID            string   `json:"kb_id"`
	Message         string   `json:"message"`
	ConversationID  string   `json:"conversation_id,omitempty"`
	SelectedSources []string `json:"selected_sources,omitempty"`
}

// generateHandler serves the streaming generation endpoints.
type generateHandler struct {
	orch   *generate.Orchestrator
	logger *slog.Logger
}

// generate handles POST /api/v1/generate: a multi-turn generation streamed
// as SSE. An empty conversation_id starts a new conversation; its ID is
// returned in the X-Conversation-ID header before the stream begins.
func (h *generateHandler) generate(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, false)
}

// chat handles POST /api/v1/chat: a single-turn generation with no history
// and no persistence, for stateless integrations.
func (h *generateHandler) chat(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, true)
}

func (h *generateHandler) run(w http.ResponseWriter, r *http.Request, singleTurn bool) {
	em, err := stream.NewSSEEmitter(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	var in GenerateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		_ = em.Emit(ctx, stream.NewError("invalid_request", "Invalid request body"))
		return
	}
	if in.KBID == "" {
		_ = em.Emit(ctx, stream.NewError("invalid_request", "kb_id is required"))
		return
	}
	if in.Message == "" {
		_ = em.Emit(ctx, stream.NewError("invalid_request", "message is required"))
		return
	}

	conversationID := in.ConversationID
	if !singleTurn && conversationID == "" {
		conversationID = uuid.New().String()
	}
	if conversationID != "" {
		w.Header().Set("X-Conversation-ID", conversationID)
	}

	state, err := h.orch.Run(ctx, generate.Request{
		KBID:            in.KBID,
		Message:         in.Message,
		ConversationID:  conversationID,
		SelectedSources: in.SelectedSources,
		SingleTurn:      singleTurn,
	}, em)
	if err != nil {
		// Already reported on the stream as an error event.
		h.logger.Warn("generation ended in failure",
			"state", state.String(),
			"error", err,
			"request_id", requestIDFromContext(ctx),
		)
		return
	}

	h.logger.Debug("generation stream closed",
		"state", state.String(),
		"request_id", requestIDFromContext(ctx),
	)
}

// conversationHandler serves conversation history endpoints.
type conversationHandler struct {
	store  conversation.Store
	logger *slog.Logger
}

// MessagesResponse is the JSON body for conversation history reads.
type MessagesResponse struct {
	ConversationID string                 `json:"conversation_id"`
	KBID           string                 `json:"kb_id"`
	Messages       []conversation.Message `json:"messages"`
}

// messages handles GET /api/v1/conversations/{id}/messages.
// kb_id is required because conversations are scoped per knowledge base.
func (h *conversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kbID := r.URL.Query().Get("kb_id")
	if kbID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "kb_id query parameter is required")
		return
	}

	msgs := h.store.History(r.Context(), id, kbID)
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, MessagesResponse{
		ConversationID: id,
		KBID:           kbID,
		Messages:       msgs,
	})
}

// clear handles DELETE /api/v1/conversations/{id}.
func (h *conversationHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	kbID := r.URL.Query().Get("kb_id")
	if kbID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "kb_id query parameter is required")
		return
	}

	if err := h.store.Clear(r.Context(), id, kbID); err != nil {
		h.logger.Error("clearing conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to clear conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
