package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/datmqhust/bookstore-orders/internal/events"
	"github.com/datmqhust/bookstore-orders/internal/kafkax"
	"github.com/datmqhust/bookstore-orders/internal/payments"
)

type WebhookResp struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

// WebhookHandler receives the bank gateway's server-to-server notifications.
// The pre-shared API key in the Authorization header is the only trust
// boundary on this endpoint.
type WebhookHandler struct {
	APIKey            string
	Reconciler        *payments.Reconciler
	ProducerCompleted Publisher // payment.completed
	ProducerFailed    Publisher // payment.failed
	Service           string
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/bank", h.handleBankTransfer)
}

func (h *WebhookHandler) handleBankTransfer(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body")
		return
	}
	var n payments.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := n.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := h.Reconciler.HandleNotification(ctx, n, raw)
	if err != nil {
		// Storage failure: non-200 so the gateway redelivers.
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.publishOutcome(out, r.Header.Get("X-Request-Id"))

	// Business outcomes, including failed and ignored, are HTTP 200 so the
	// gateway does not retry deliveries that will never succeed.
	writeJSON(w, http.StatusOK, WebhookResp{
		Success: true,
		Outcome: string(out.Tag),
		Reason:  out.Reason,
	})
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	const prefix = "Apikey "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	return h.APIKey != "" && strings.TrimPrefix(auth, prefix) == h.APIKey
}

func (h *WebhookHandler) publishOutcome(out payments.Outcome, trace string) {
	if out.Payment == nil {
		return
	}
	p := out.Payment

	var topicProducer Publisher
	var eventType string
	var payload []byte
	switch out.Tag {
	case payments.OutcomeSuccess:
		topicProducer = h.ProducerCompleted
		eventType = events.EventPaymentCompleted
		payload = kafkax.MustMarshal(events.PaymentCompletedPayload{
			OrderID: p.OrderID, PaymentID: p.ID, Amount: p.Amount, GatewayTxID: p.GatewayTxID,
		})
	case payments.OutcomeFailed:
		topicProducer = h.ProducerFailed
		eventType = events.EventPaymentFailed
		payload = kafkax.MustMarshal(events.PaymentFailedPayload{
			OrderID: p.OrderID, PaymentID: p.ID, Reason: "AMOUNT_MISMATCH",
		})
	default:
		return
	}

	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: p.OrderID,
		Payload:       payload,
	}
	topicProducer.Publish(events.PartitionKey(p.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
