package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/datmqhust/bookstore-orders/internal/catalog"
	"github.com/datmqhust/bookstore-orders/internal/events"
	"github.com/datmqhust/bookstore-orders/internal/kafkax"
	"github.com/datmqhust/bookstore-orders/internal/orders"
	"github.com/datmqhust/bookstore-orders/internal/payments"
	"github.com/datmqhust/bookstore-orders/internal/redisx"
	"github.com/datmqhust/bookstore-orders/internal/users"
)

type CreateOrderReq struct {
	UserID        string                 `json:"user_id"`
	Shipping      orders.ShippingAddress `json:"shipping"`
	PaymentMethod payments.Method        `json:"payment_method"`
	Items         []orders.DirectItem    `json:"items,omitempty"` // buy-now path; empty means checkout from cart
	RequestID     string                 `json:"request_id,omitempty"`
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
}

type ConfirmReq struct {
	TransactionCode string `json:"transaction_code"`
}

// OrderStore is what the read and admin endpoints need from the orders repo.
// *orders.Repo satisfies it.
type OrderStore interface {
	Get(ctx context.Context, id string) (*orders.Order, error)
	GetStatus(ctx context.Context, id string) (orders.Status, orders.PaymentStatus, error)
	SetStatus(ctx context.Context, id string, to orders.Status) error
}

type OrdersHandler struct {
	Workflow   *orders.Workflow
	Orders     OrderStore
	Catalog    *catalog.Repo
	Reconciler *payments.Reconciler
	Redis      Cache
	Producer   Publisher // order.created
	Service    string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/{id}/payment", h.getPaymentInstructions)
	r.Post("/orders/{id}/confirm", h.confirmPayment)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Get("/products", h.listProducts)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Optional client-supplied request id makes retries safe: a repeat of an
	// already-applied request returns the original order instead of creating
	// a second one.
	if req.RequestID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.RequestID)
		if id, err := h.Redis.Get(ctx, idemKey).Result(); err == nil && id != "" {
			if o, gerr := h.Orders.Get(ctx, id); gerr == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	order, err := h.Workflow.Create(ctx, orders.CreateInput{
		UserID:      req.UserID,
		Shipping:    req.Shipping,
		Method:      req.PaymentMethod,
		DirectItems: req.Items,
	})
	if err != nil {
		writeError(w, statusForWorkflowErr(err), err.Error())
		return
	}

	// Cache the status pair so GET /orders/{id}/status is cheap.
	h.cacheStatus(ctx, order.ID, order.Status, order.PaymentStatus)
	if req.RequestID != "" {
		idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.RequestID)
		_ = h.Redis.Set(ctx, idemKey, order.ID, redisx.TTLIdempotency).Err()
	}

	h.publishOrderCreated(order, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusCreated, order)
}

func statusForWorkflowErr(err error) int {
	var insufficient *orders.InsufficientStockError
	var invalid *orders.ValidationError
	switch {
	case errors.Is(err, users.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrEmptyCart),
		errors.As(err, &insufficient),
		errors.As(err, &invalid):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *OrdersHandler) publishOrderCreated(o *orders.Order, trace string) {
	lines := make([]events.ItemLine, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, events.ItemLine{
			ProductID: it.ProductID, Name: it.Name, Qty: it.Qty, Price: it.Price,
		})
	}
	ev := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     events.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(events.OrderCreatedPayload{
			OrderID:       o.ID,
			UserID:        o.UserID,
			PaymentMethod: string(o.Method),
			Items:         lines,
			TotalAmount:   o.TotalAmount,
		}),
	}
	h.Producer.Publish(events.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(events.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.Get(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	s, ps, err := h.Orders.GetStatus(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.cacheStatus(ctx, orderID, s, ps)
	writeJSON(w, http.StatusOK, map[string]any{"status": s, "payment_status": ps})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID string, s orders.Status, ps orders.PaymentStatus) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	b, _ := json.Marshal(map[string]any{"status": s, "payment_status": ps})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) getPaymentInstructions(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ins, err := h.Reconciler.InstructionsFor(ctx, orderID)
	if errors.Is(err, payments.ErrNoPayment) {
		writeError(w, http.StatusNotFound, "no payment for order")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

// confirmPayment is the trusted direct-confirmation path (COD completion,
// manually verified transfer).
func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req ConfirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Reconciler.Confirm(ctx, orderID, req.TransactionCode)
	if errors.Is(err, payments.ErrNoPayment) {
		writeError(w, http.StatusNotFound, "no payment for order")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Refresh the cached pair from the store: confirmation may land on an
	// order that already moved past PROCESSING.
	if s, ps, serr := h.Orders.GetStatus(ctx, orderID); serr == nil {
		h.cacheStatus(ctx, orderID, s, ps)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_id": p.ID,
		"status":     p.Status,
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// Cancellation goes through the workflow so reserved stock is released.
	if req.Status == orders.StatusCancelled {
		o, err := h.Workflow.Cancel(ctx, orderID)
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.cacheStatus(ctx, orderID, o.Status, o.PaymentStatus)
		writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
		return
	}

	if err := h.Orders.SetStatus(ctx, orderID, req.Status); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s, ps, err := h.Orders.GetStatus(ctx, orderID)
	if err == nil {
		h.cacheStatus(ctx, orderID, s, ps)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": req.Status})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ps)
}
