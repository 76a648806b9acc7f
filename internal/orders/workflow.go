package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/datmqhust/bookstore-orders/internal/cart"
	"github.com/datmqhust/bookstore-orders/internal/catalog"
	"github.com/datmqhust/bookstore-orders/internal/payments"
	"github.com/datmqhust/bookstore-orders/internal/users"
)

var ErrEmptyCart = fmt.Errorf("cart is empty")

// InsufficientStockError names the product that could not be covered.
type InsufficientStockError struct {
	Product string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q", e.Product)
}

type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field %q", e.Field)
}

type UserStore interface {
	Get(ctx context.Context, id string) (users.User, error)
}

type CartStore interface {
	GetOrCreate(ctx context.Context, userID string) (cart.Cart, error)
	Clear(ctx context.Context, userID string) error
}

type ProductStore interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
	TryReserve(ctx context.Context, productID string, qty int) (bool, error)
	Release(ctx context.Context, productID string, qty int) error
	ReserveAll(ctx context.Context, items []catalog.ItemQty) (bool, []catalog.ShortageDetail, error)
}

type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	SetStatus(ctx context.Context, id string, to Status) error
	Delete(ctx context.Context, id string) error
}

type PaymentCreator interface {
	Create(ctx context.Context, p payments.Payment) error
	DeleteByOrder(ctx context.Context, orderID string) error
}

// DirectItem is the "buy now" input that bypasses the cart. Only product id
// and quantity are taken from the client; price is resolved server-side.
type DirectItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type CreateInput struct {
	UserID      string
	Shipping    ShippingAddress
	Method      payments.Method
	DirectItems []DirectItem // optional
}

// Workflow turns a cart or a direct-item list into a persisted Order, its
// initial Payment, and a stock decrement. Fully sequential; the only
// compensating action is deleting the just-created order (and its payment)
// when the stock reservation fails.
type Workflow struct {
	Users    UserStore
	Carts    CartStore
	Products ProductStore
	Orders   OrderStore
	Payments PaymentCreator
	Log      *slog.Logger
}

func (w *Workflow) Create(ctx context.Context, in CreateInput) (*Order, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if _, err := w.Users.Get(ctx, in.UserID); err != nil {
		return nil, err
	}

	items, fromCart, err := w.resolveItems(ctx, in)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, it := range items {
		total += it.Price * int64(it.Qty)
	}

	now := time.Now().UTC()
	order := &Order{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Shipping:      in.Shipping,
		Method:        in.Method,
		Items:         items,
		TotalAmount:   total,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := w.Orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	if err := w.Payments.Create(ctx, payments.NewInitial(order.ID, in.UserID, total, in.Method)); err != nil {
		if derr := w.Orders.Delete(ctx, order.ID); derr != nil {
			w.Log.Error("rollback order delete failed", "order_id", order.ID, "err", derr)
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	ok, shortages, err := w.reserve(ctx, items)
	if err != nil {
		w.rollback(ctx, order.ID)
		return nil, fmt.Errorf("reserve stock: %w", err)
	}
	if !ok {
		// No partial order survives. Reservation is all-or-nothing, so no
		// stock needs restoring here.
		w.rollback(ctx, order.ID)
		name := "unknown product"
		if len(shortages) > 0 {
			name = shortages[0].Name
			if name == "" {
				name = shortages[0].ProductID
			}
		}
		return nil, &InsufficientStockError{Product: name}
	}

	if fromCart {
		if err := w.Carts.Clear(ctx, in.UserID); err != nil {
			w.Log.Error("clear cart after checkout failed", "user_id", in.UserID, "err", err)
		}
	}

	w.Log.Info("order created", "order_id", order.ID, "user_id", in.UserID,
		"total", total, "method", in.Method, "items", len(items))
	return order, nil
}

// reserve applies the stock decrement for every line. A single-line order
// takes the lone conditional decrement; multi-line orders go through the
// transactional batch so their effect stays all-or-nothing.
func (w *Workflow) reserve(ctx context.Context, items []Item) (bool, []catalog.ShortageDetail, error) {
	if len(items) == 1 {
		it := items[0]
		ok, err := w.Products.TryReserve(ctx, it.ProductID, it.Qty)
		if err != nil || ok {
			return ok, nil, err
		}
		// The conditional update cannot tell a shortage from a product that
		// vanished; look it up to report the right condition.
		p, gerr := w.Products.Get(ctx, it.ProductID)
		if gerr != nil {
			return false, nil, gerr
		}
		return false, []catalog.ShortageDetail{{
			ProductID: it.ProductID, Name: p.Name, Required: it.Qty, Available: p.InStock,
		}}, nil
	}

	reserve := make([]catalog.ItemQty, 0, len(items))
	for _, it := range items {
		reserve = append(reserve, catalog.ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return w.Products.ReserveAll(ctx, reserve)
}

// rollback removes the just-created order and its initial payment.
func (w *Workflow) rollback(ctx context.Context, orderID string) {
	if derr := w.Payments.DeleteByOrder(ctx, orderID); derr != nil {
		w.Log.Error("rollback payment delete failed", "order_id", orderID, "err", derr)
	}
	if derr := w.Orders.Delete(ctx, orderID); derr != nil {
		w.Log.Error("rollback order delete failed", "order_id", orderID, "err", derr)
	}
}

// Cancel aborts an order and puts its reserved stock back. The transition
// table decides whether cancellation is still allowed (before shipping).
func (w *Workflow) Cancel(ctx context.Context, orderID string) (*Order, error) {
	o, err := w.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := w.Orders.SetStatus(ctx, orderID, StatusCancelled); err != nil {
		return nil, err
	}
	for _, it := range o.Items {
		if rerr := w.Products.Release(ctx, it.ProductID, it.Qty); rerr != nil {
			w.Log.Error("stock release failed", "order_id", orderID,
				"product_id", it.ProductID, "err", rerr)
		}
	}
	o.Status = StatusCancelled
	w.Log.Info("order cancelled", "order_id", orderID, "items", len(o.Items))
	return o, nil
}

// resolveItems builds the immutable line items. Direct items are re-fetched
// from the catalog so the client never dictates a price; carts contribute
// their add-time snapshots as-is. Stock is only definitively checked at the
// reservation step.
func (w *Workflow) resolveItems(ctx context.Context, in CreateInput) ([]Item, bool, error) {
	if len(in.DirectItems) > 0 {
		items := make([]Item, 0, len(in.DirectItems))
		for _, di := range in.DirectItems {
			if di.Qty < 1 {
				return nil, false, &ValidationError{Field: "qty"}
			}
			p, err := w.Products.Get(ctx, di.ProductID)
			if err != nil {
				return nil, false, err
			}
			if p.InStock < di.Qty {
				return nil, false, &InsufficientStockError{Product: p.Name}
			}
			items = append(items, Item{
				ProductID: p.ID,
				Name:      p.Name,
				Qty:       di.Qty,
				Price:     p.EffectivePrice(),
			})
		}
		return items, false, nil
	}

	c, err := w.Carts.GetOrCreate(ctx, in.UserID)
	if err != nil {
		return nil, false, err
	}
	if len(c.Items) == 0 {
		return nil, false, ErrEmptyCart
	}
	items := make([]Item, 0, len(c.Items))
	for _, ci := range c.Items {
		items = append(items, Item{
			ProductID: ci.ProductID,
			Name:      ci.Name,
			Qty:       ci.Qty,
			Price:     ci.Price,
		})
	}
	return items, true, nil
}

func validateInput(in CreateInput) error {
	switch {
	case in.UserID == "":
		return &ValidationError{Field: "user_id"}
	case in.Shipping.FullName == "":
		return &ValidationError{Field: "full_name"}
	case in.Shipping.Address == "":
		return &ValidationError{Field: "address"}
	case in.Shipping.City == "":
		return &ValidationError{Field: "city"}
	case in.Shipping.Phone == "":
		return &ValidationError{Field: "phone"}
	}
	if !payments.ValidMethod(in.Method) {
		return &ValidationError{Field: "payment_method"}
	}
	return nil
}
