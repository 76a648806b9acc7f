package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("product not found")

// ShortageDetail reports one order line the stock could not cover.
type ShortageDetail struct {
	ProductID string
	Name      string
	Required  int
	Available int
}

type ItemQty struct {
	ProductID string
	Qty       int
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Get(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, price, discount, in_stock, sold, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Discount, &p.InStock, &p.Sold, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *Repo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, price, discount, in_stock, sold, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Discount, &p.InStock, &p.Sold, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TryReserve decrements in_stock and bumps sold in one conditional UPDATE.
// The WHERE clause is the guard: the decrement only applies when the stored
// quantity still covers the request, so concurrent checkouts cannot drive
// in_stock negative. Never implemented as a read-then-write pair.
func (r *Repo) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	if qty <= 0 {
		return false, fmt.Errorf("invalid qty %d for product %s", qty, productID)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products
		SET in_stock = in_stock - $2, sold = sold + $2, updated_at = now()
		WHERE id = $1 AND in_stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Release puts a reservation back (compensation path).
func (r *Repo) Release(ctx context.Context, productID string, qty int) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE products
		SET in_stock = in_stock + $2, sold = sold - $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	return err
}

// ReserveAll applies every line of one order inside a single transaction,
// locking each product row first. Any shortage rolls the whole batch back,
// so an order's stock effects are all-or-nothing.
func (r *Repo) ReserveAll(ctx context.Context, items []ItemQty) (ok bool, details []ShortageDetail, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, nil, err
	}
	defer tx.Rollback(ctx)

	var shortages []ShortageDetail

	for _, it := range items {
		var stock int
		var name string
		if err := tx.QueryRow(ctx,
			`SELECT in_stock, name FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).
			Scan(&stock, &name); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// A vanished product is not a shortage; surface it the same
				// way Get does so callers can map it consistently.
				return false, nil, fmt.Errorf("product %s: %w", it.ProductID, ErrNotFound)
			}
			return false, nil, err
		}
		if stock < it.Qty {
			shortages = append(shortages, ShortageDetail{
				ProductID: it.ProductID, Name: name, Required: it.Qty, Available: stock,
			})
			continue
		}

		if _, err := tx.Exec(ctx, `
			UPDATE products
			SET in_stock = in_stock - $2, sold = sold + $2, updated_at = now()
			WHERE id=$1`, it.ProductID, it.Qty); err != nil {
			return false, nil, err
		}
	}

	if len(shortages) > 0 {
		return false, shortages, nil // rollback via defer
	}
	if err := tx.Commit(ctx); err != nil {
		return false, nil, err
	}
	return true, nil, nil
}
