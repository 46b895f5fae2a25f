package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/alialshehriar/bithrah-app-sub003/internal/negotiation"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	orch     *negotiation.Orchestrator
	pg       store.DataStore
	redis    *store.RedisStore
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(orch *negotiation.Orchestrator, pg store.DataStore, redis *store.RedisStore, logger zerolog.Logger) *Handler {
	return &Handler{
		orch:     orch,
		pg:       pg,
		redis:    redis,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// DomainError maps negotiation engine errors to HTTP responses. Unknown
// errors are logged and surfaced as 500 without leaking internals.
func (h *Handler) DomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, negotiation.ErrNotFound), errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, "negotiation not found")
	case errors.Is(err, negotiation.ErrNotParticipant):
		h.Error(w, http.StatusForbidden, "not a participant in this negotiation")
	case errors.Is(err, negotiation.ErrAccessDenied):
		h.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, negotiation.ErrNegotiationExpired):
		h.Error(w, http.StatusGone, "negotiation window has expired")
	case errors.Is(err, negotiation.ErrInvalidTransition), errors.Is(err, negotiation.ErrInvalidState):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, negotiation.ErrPolicyViolation):
		h.Error(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, negotiation.ErrUpstreamTimeout):
		h.Error(w, http.StatusServiceUnavailable, "upstream service unavailable, try again")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled handler error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode parses and validates a JSON request body into dst.
func (h *Handler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New("invalid field: " + verrs[0].Field())
		}
		return err
	}
	return nil
}
