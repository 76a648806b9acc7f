package orders

import (
	"time"

	"github.com/datmqhust/bookstore-orders/internal/payments"
)

// Item is an immutable order line: name and unit price are captured at
// order time and never recomputed.
type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Qty       int    `json:"qty"`
	Price     int64  `json:"price"`
}

type ShippingAddress struct {
	FullName string `json:"full_name"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Phone    string `json:"phone"`
}

type Order struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Shipping      ShippingAddress `json:"shipping"`
	Method        payments.Method `json:"payment_method"`
	Items         []Item          `json:"items"`
	TotalAmount   int64           `json:"total_amount"` // stored at creation, not recomputed on read
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
