package usage

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/auth"
	"github.com/mailmind/mailmind/internal/logging"
)

const maxListLimit = 100

// Lister reads a user's recorded usage.
type Lister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)
}

// Handler serves GET /usage.
type Handler struct {
	entries Lister
}

func NewHandler(entries Lister) *Handler {
	return &Handler{entries: entries}
}

// History returns the caller's most recent prompt and plan events.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CallerID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			api.HandleError(w, api.NewBadRequestError("limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	entries, err := h.entries.ListByUser(r.Context(), userID, limit)
	if err != nil {
		slog.Error("usage: listing entries", logging.UserID(userID.String()), logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	// api.JSON would drop an empty list through omitempty.
	api.WriteJSON(w, http.StatusOK, map[string][]Entry{"data": entries})
}
