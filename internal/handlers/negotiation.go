package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alialshehriar/bithrah-app-sub003/internal/api/middleware"
	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

const maxMessageLength = 4000

// OpenNegotiationRequest represents the open negotiation request body.
type OpenNegotiationRequest struct {
	ListingID string `json:"listing_id" validate:"required,uuid"`
}

// PostMessageRequest represents the post message request body.
type PostMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// MessageListResponse represents the transcript listing response.
type MessageListResponse struct {
	Messages []models.Message `json:"messages"`
}

// PostMessageResponse pairs the counterparty's reply with the session
// state after the exchange. Reply is null when the listing owner spoke
// for themself.
type PostMessageResponse struct {
	Reply   *models.Message            `json:"reply"`
	Session *models.NegotiationSession `json:"session"`
}

// FinalizeResponse represents the finalize response.
type FinalizeResponse struct {
	Session     *models.NegotiationSession `json:"session"`
	Settlements []models.SettlementRecord  `json:"settlements"`
}

// OpenNegotiation handles POST /negotiations.
func (h *Handler) OpenNegotiation(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())

	var req OpenNegotiationRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	listingID, err := uuid.Parse(req.ListingID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid listing ID format")
		return
	}

	sess, err := h.orch.Open(r.Context(), actor, listingID)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, sess)
}

// ConfirmDeposit handles POST /negotiations/{id}/deposit.
func (h *Handler) ConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.orch.ConfirmDeposit(r.Context(), sessionID, actor)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, sess)
}

// PostMessage handles POST /negotiations/{id}/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(content) > maxMessageLength {
		h.Error(w, http.StatusUnprocessableEntity, "content too long (max 4000 bytes)")
		return
	}

	reply, err := h.orch.PostMessage(r.Context(), sessionID, actor, content)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}

	sess, err := h.orch.GetSession(r.Context(), sessionID, actor)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	h.JSON(w, http.StatusCreated, PostMessageResponse{Reply: reply, Session: sess})
}

// CancelNegotiation handles POST /negotiations/{id}/cancel.
func (h *Handler) CancelNegotiation(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.orch.Cancel(r.Context(), sessionID, actor)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, sess)
}

// FinalizeNegotiation handles POST /negotiations/{id}/finalize.
func (h *Handler) FinalizeNegotiation(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	// Authorize before finalizing; only participants may finalize.
	if _, err := h.orch.GetSession(r.Context(), sessionID, actor); err != nil {
		h.DomainError(w, r, err)
		return
	}

	settlements, err := h.orch.Finalize(r.Context(), sessionID)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	sess, err := h.orch.GetSession(r.Context(), sessionID, actor)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, FinalizeResponse{Session: sess, Settlements: settlements})
}

// GetNegotiation handles GET /negotiations/{id}.
func (h *Handler) GetNegotiation(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.orch.GetSession(r.Context(), sessionID, actor)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, sess)
}

// GetMessages handles GET /negotiations/{id}/messages.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActorID(r.Context())
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			h.Error(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	messages, err := h.orch.ListMessages(r.Context(), sessionID, actor, limit)
	if err != nil {
		h.DomainError(w, r, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	h.JSON(w, http.StatusOK, MessageListResponse{Messages: messages})
}

// sessionID parses the {id} URL parameter, writing a 400 on failure.
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid negotiation ID format")
		return uuid.Nil, false
	}
	return id, true
}
