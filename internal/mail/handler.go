package mail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/auth"
	"github.com/mailmind/mailmind/internal/logging"
	"github.com/mailmind/mailmind/internal/metrics"
)

// Gmail caps a message at 25MB; base64 adds a third on top.
const maxDraftBytes = 35 << 20

// Mailbox is the slice of Service the handlers use.
type Mailbox interface {
	List(ctx context.Context, userID uuid.UUID, category, pageToken string) (*Page, error)
	Send(ctx context.Context, userID uuid.UUID, d Draft) (*Sent, error)
	Reply(ctx context.Context, userID uuid.UUID, threadID string, r Reply) (*Sent, error)
	Attachment(ctx context.Context, userID uuid.UUID, messageID, attachmentID string) (string, error)
}

// Handler serves /api/v1/mail.
type Handler struct {
	mailbox  Mailbox
	validate *validator.Validate
}

func NewHandler(mailbox Mailbox) *Handler {
	return &Handler{mailbox: mailbox, validate: validator.New()}
}

// List handles GET /mail?category=&pageToken=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := h.mailbox.List(r.Context(), userID, q.Get("category"), q.Get("pageToken"))
	if err != nil {
		writeError(w, "list", userID, err)
		return
	}

	metrics.MailRequestsTotal.WithLabelValues("list", "success").Inc()
	api.WriteJSON(w, http.StatusOK, page)
}

// Send handles POST /mail/send.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var d Draft
	if !h.decode(w, r, &d) {
		return
	}

	sent, err := h.mailbox.Send(r.Context(), userID, d)
	if err != nil {
		writeError(w, "send", userID, err)
		return
	}

	metrics.MailRequestsTotal.WithLabelValues("send", "success").Inc()
	api.WriteJSON(w, http.StatusOK, sent)
}

// Reply handles POST /mail/reply/{threadID}.
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req Reply
	if !h.decode(w, r, &req) {
		return
	}

	sent, err := h.mailbox.Reply(r.Context(), userID, chi.URLParam(r, "threadID"), req)
	if err != nil {
		writeError(w, "reply", userID, err)
		return
	}

	metrics.MailRequestsTotal.WithLabelValues("reply", "success").Inc()
	api.WriteJSON(w, http.StatusOK, sent)
}

// Attachment handles GET /mail/attachment?messageId=&attachmentId=.
func (h *Handler) Attachment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	messageID, attachmentID := q.Get("messageId"), q.Get("attachmentId")
	if messageID == "" || attachmentID == "" {
		api.HandleError(w, api.NewBadRequestError("messageId and attachmentId are required"))
		return
	}

	data, err := h.mailbox.Attachment(r.Context(), userID, messageID, attachmentID)
	if err != nil {
		writeError(w, "attachment", userID, err)
		return
	}

	metrics.MailRequestsTotal.WithLabelValues("attachment", "success").Inc()
	api.JSON(w, http.StatusOK, data)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDraftBytes)).Decode(dst); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return false
	}
	return true
}

func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.CallerID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
	}
	return userID, ok
}

func writeError(w http.ResponseWriter, op string, userID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrNotConnected):
		metrics.MailRequestsTotal.WithLabelValues(op, "not_connected").Inc()
		slog.Warn("mail: mailbox not connected", logging.Operation(op), logging.UserID(userID.String()), logging.Err(err))
		api.HandleError(w, api.ErrMailNotConnected)
	case errors.Is(err, ErrNotFound):
		metrics.MailRequestsTotal.WithLabelValues(op, "not_found").Inc()
		api.HandleError(w, api.ErrNotFound)
	case errors.Is(err, ErrInvalidDraft), errors.Is(err, ErrRejected):
		metrics.MailRequestsTotal.WithLabelValues(op, "rejected").Inc()
		api.HandleError(w, api.NewBadRequestError(err.Error()))
	case errors.Is(err, ErrUpstream):
		metrics.MailRequestsTotal.WithLabelValues(op, "error").Inc()
		slog.Error("mail: gmail request failed", logging.Operation(op), logging.UserID(userID.String()), logging.Err(err))
		api.HandleError(w, api.ErrUpstream)
	default:
		metrics.MailRequestsTotal.WithLabelValues(op, "error").Inc()
		slog.Error("mail: request failed", logging.Operation(op), logging.UserID(userID.String()), logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
	}
}
