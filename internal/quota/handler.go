package quota

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/auth"
	"github.com/mailmind/mailmind/internal/logging"
)

// Service is what the prompt handlers need from a Ledger.
type Service interface {
	Peek(ctx context.Context, userID uuid.UUID) (Status, error)
	Consume(ctx context.Context, userID uuid.UUID) (Status, error)
}

// Handler serves GET and POST /chat/prompts.
type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// GetPrompts returns the caller's remaining prompts for today.
func (h *Handler) GetPrompts(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	status, err := h.svc.Peek(r.Context(), userID)
	if err != nil {
		writeError(w, "peek", userID, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, status)
}

// ConsumePrompt charges one prompt and returns the authoritative remainder.
func (h *Handler) ConsumePrompt(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	status, err := h.svc.Consume(r.Context(), userID)
	if err != nil {
		writeError(w, "consume", userID, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, status)
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.CallerID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
	}
	return userID, ok
}

func writeError(w http.ResponseWriter, op string, userID uuid.UUID, err error) {
	if errors.Is(err, ErrUserNotFound) {
		slog.Warn("quota: user not found", logging.Operation(op), logging.UserID(userID.String()))
		api.HandleError(w, api.ErrUserNotFound)
		return
	}

	slog.Error("quota: request failed", logging.Operation(op), logging.UserID(userID.String()), logging.Err(err))
	api.HandleError(w, api.ErrInternalServer)
}
