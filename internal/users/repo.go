package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Get(ctx context.Context, id string) (User, error) {
	var u User
	err := r.DB.QueryRow(ctx,
		`SELECT id, name, email, phone, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
