package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/auth"
	"github.com/mailmind/mailmind/internal/logging"
	"github.com/mailmind/mailmind/internal/metrics"
	"github.com/mailmind/mailmind/internal/quota"
)

const (
	maxBodyBytes       = 1 << 20
	streamWriteTimeout = 2 * time.Minute
)

// Gate refuses a completion when the user has no prompts left today.
type Gate interface {
	Allow(ctx context.Context, userID uuid.UUID) error
}

type Handler struct {
	gate      Gate
	completer Completer
	repo      Repository
	validate  *validator.Validate
	now       func() time.Time
}

func NewHandler(gate Gate, completer Completer, repo Repository) *Handler {
	return &Handler{
		gate:      gate,
		completer: completer,
		repo:      repo,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Complete streams the assistant's answer as plain text chunks. The prompt
// is not charged here; the browser charges it through the prompts endpoint.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CallerID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	if err := h.gate.Allow(r.Context(), userID); err != nil {
		switch {
		case errors.Is(err, quota.ErrLimitReached):
			api.HandleError(w, api.ErrLimitReached)
		case errors.Is(err, quota.ErrUserNotFound):
			api.HandleError(w, api.ErrUserNotFound)
		default:
			slog.Error("chat: checking prompt allowance", logging.UserID(userID.String()), logging.Err(err))
			api.HandleError(w, api.ErrInternalServer)
		}
		return
	}

	askedAt := h.now()
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(askedAt.Add(streamWriteTimeout))
	started := false
	begin := func() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	reply, err := h.completer.Stream(r.Context(), systemPrompt(req.MailContext), req.Messages, func(delta string) error {
		if !started {
			begin()
		}
		if _, err := io.WriteString(w, delta); err != nil {
			return err
		}
		// Not every writer can flush; chunks still arrive, just buffered.
		_ = rc.Flush()
		return nil
	})
	if err != nil {
		metrics.ChatCompletionsTotal.WithLabelValues("error").Inc()
		slog.Error("chat: streaming completion", logging.UserID(userID.String()), logging.Err(err))
		if !started {
			api.HandleError(w, api.ErrUpstream)
		}
		return
	}
	if !started {
		begin()
	}
	metrics.ChatCompletionsTotal.WithLabelValues("success").Inc()

	if req.ThreadID != "" {
		h.persist(context.WithoutCancel(r.Context()), userID, &req, askedAt, reply)
	}
}

func (h *Handler) persist(ctx context.Context, userID uuid.UUID, req *Request, askedAt time.Time, reply string) {
	var msgs []Message
	if turn, ok := req.lastUserTurn(); ok {
		msgs = append(msgs, Message{
			ID: uuid.New(), UserID: userID, ThreadID: req.ThreadID,
			Role: RoleUser, Content: turn.Content, CreatedAt: askedAt,
		})
	}
	if reply != "" {
		msgs = append(msgs, Message{
			ID: uuid.New(), UserID: userID, ThreadID: req.ThreadID,
			Role: RoleAssistant, Content: reply, CreatedAt: h.now(),
		})
	}

	if err := h.repo.Append(ctx, msgs...); err != nil {
		slog.Error("chat: saving messages", logging.UserID(userID.String()),
			slog.String("thread_id", req.ThreadID), logging.Err(err))
	}
}

// Messages lists the caller's saved messages for ?threadId=.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.CallerID(r.Context())
	if !ok {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	threadID := r.URL.Query().Get("threadId")
	if threadID == "" {
		api.HandleError(w, api.NewBadRequestError("threadId is required"))
		return
	}

	msgs, err := h.repo.ListByThread(r.Context(), userID, threadID)
	if err != nil {
		slog.Error("chat: listing messages", logging.UserID(userID.String()), logging.Err(err))
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.WriteJSON(w, http.StatusOK, msgs)
}
