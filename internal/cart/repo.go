package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrItemNotFound = errors.New("item not in cart")

type Repo struct{ DB *pgxpool.Pool }

// GetOrCreate loads the user's cart, creating an empty one on first access.
func (r *Repo) GetOrCreate(ctx context.Context, userID string) (Cart, error) {
	c, err := r.get(ctx, userID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Cart{}, err
	}

	id := uuid.NewString()
	_, err = r.DB.Exec(ctx, `
		INSERT INTO carts(id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, id, userID)
	if err != nil {
		return Cart{}, err
	}
	return r.get(ctx, userID)
}

func (r *Repo) get(ctx context.Context, userID string) (Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id=$1`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Cart{}, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, qty, price FROM cart_items
		WHERE cart_id=$1 ORDER BY added_at`, c.ID)
	if err != nil {
		return Cart{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Qty, &it.Price); err != nil {
			return Cart{}, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

// UpsertItem adds a product to the cart or replaces its quantity, snapshotting
// name and unit price as passed by the caller (the handler resolves them from
// the catalog, never from client input).
func (r *Repo) UpsertItem(ctx context.Context, userID string, it Item) error {
	if it.Qty < 1 {
		return fmt.Errorf("invalid qty %d", it.Qty)
	}
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, name, qty, price)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET qty = EXCLUDED.qty, name = EXCLUDED.name, price = EXCLUDED.price`,
		c.ID, it.ProductID, it.Name, it.Qty, it.Price)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id=$1`, c.ID)
	return err
}

func (r *Repo) RemoveItem(ctx context.Context, userID, productID string) error {
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, c.ID, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Clear empties the cart's item list. The cart row itself survives.
func (r *Repo) Clear(ctx context.Context, userID string) error {
	c, err := r.GetOrCreate(ctx, userID)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, c.ID)
	return err
}
