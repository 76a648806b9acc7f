package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, full_name, address, city, phone,
			payment_method, total_amount, status, payment_status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.UserID, o.Shipping.FullName, o.Shipping.Address, o.Shipping.City,
		o.Shipping.Phone, o.Method, o.TotalAmount, o.Status, o.PaymentStatus,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, qty, price)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ProductID, it.Name, it.Qty, it.Price); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, full_name, address, city, phone,
			payment_method, total_amount, status, payment_status, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.Shipping.FullName, &o.Shipping.Address, &o.Shipping.City,
			&o.Shipping.Phone, &o.Method, &o.TotalAmount, &o.Status, &o.PaymentStatus,
			&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, qty, price FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.Price); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, PaymentStatus, error) {
	var s Status
	var ps PaymentStatus
	err := r.DB.QueryRow(ctx,
		`SELECT status, payment_status FROM orders WHERE id=$1`, id).Scan(&s, &ps)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrNotFound
	}
	return s, ps, err
}

// SetStatus applies an admin fulfillment transition, enforced against the
// transition table in the same conditional UPDATE.
func (r *Repo) SetStatus(ctx context.Context, id string, to Status) error {
	from, _, err := r.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("cannot transition order from %s to %s", from, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`, id, to, from)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s changed concurrently", id)
	}
	return nil
}

// MarkPaid advances the status pair after a completed payment.
func (r *Repo) MarkPaid(ctx context.Context, orderID string) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET payment_status=$2, status=$3, updated_at=now()
		WHERE id=$1`, orderID, PaymentPaid, StatusProcessing)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
