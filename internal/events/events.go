package events

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated     = "OrderCreated"
	EventPaymentCompleted = "PaymentCompleted"
	EventPaymentFailed    = "PaymentFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Price     int64  `json:"price"`
}

type OrderCreatedPayload struct {
	OrderID       string     `json:"order_id"`
	UserID        string     `json:"user_id"`
	PaymentMethod string     `json:"payment_method"`
	Items         []ItemLine `json:"items"`
	TotalAmount   int64      `json:"total_amount"`
}

type PaymentCompletedPayload struct {
	OrderID     string `json:"order_id"`
	PaymentID   string `json:"payment_id"`
	Amount      int64  `json:"amount"`
	GatewayTxID string `json:"gateway_tx_id,omitempty"`
}

type PaymentFailedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"` // e.g. AMOUNT_MISMATCH
}
