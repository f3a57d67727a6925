package billing

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/mailmind/mailmind/internal/api"
	"github.com/mailmind/mailmind/internal/logging"
	"github.com/mailmind/mailmind/internal/metrics"
)

const maxPayloadBytes = 65536

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, webhookSecret string) *Handler {
	return &Handler{svc: svc, secret: webhookSecret}
}

// Webhook receives payment provider events. Once the signature checks out
// the event is always acknowledged; processing failures are only logged.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("Stripe-Signature")
	if signature == "" || h.secret == "" {
		metrics.BillingEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		api.HandleError(w, api.NewBadRequestError("missing webhook signature or secret"))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("unreadable webhook payload"))
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("billing: webhook signature verification failed", logging.Err(err))
		metrics.BillingEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		api.HandleError(w, api.ErrInvalidSignature)
		return
	}

	eventType := string(event.Type)
	outcome, err := h.svc.Process(r.Context(), event)
	if err != nil {
		slog.Error("billing: processing webhook event",
			slog.String("event_id", event.ID), slog.String("event_type", eventType), logging.Err(err))
		metrics.BillingEventsTotal.WithLabelValues(eventType, "failed").Inc()
	} else {
		metrics.BillingEventsTotal.WithLabelValues(eventType, string(outcome)).Inc()
	}

	api.JSON(w, http.StatusOK, map[string]bool{"received": true})
}
