package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const paymentCols = `id, order_id, user_id, amount, method, status,
	gateway_tx_id, bank_code, transfer_content, note, raw_payload, completed_at, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Method, &p.Status,
		&p.GatewayTxID, &p.BankCode, &p.TransferContent, &p.Note, &p.RawPayload,
		&p.CompletedAt, &p.CreatedAt)
	return p, err
}

func (r *Repo) Create(ctx context.Context, p Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, user_id, amount, method, status, transfer_content, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.OrderID, p.UserID, p.Amount, p.Method, p.Status, p.TransferContent, p.CreatedAt)
	return err
}

func (r *Repo) DeleteByOrder(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM payments WHERE order_id=$1`, orderID)
	return err
}

func (r *Repo) LatestByOrder(ctx context.Context, orderID string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE order_id=$1 ORDER BY created_at DESC LIMIT 1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNoPayment
	}
	return p, err
}

func (r *Repo) LatestPending(ctx context.Context, orderID string, m Method) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE order_id=$1 AND method=$2 AND status=$3
		ORDER BY created_at DESC LIMIT 1`, orderID, m, StatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNoPending
	}
	return p, err
}

func (r *Repo) FindByGatewayTx(ctx context.Context, orderID, txID string) (Payment, error) {
	p, err := scanPayment(r.DB.QueryRow(ctx, `
		SELECT `+paymentCols+` FROM payments
		WHERE order_id=$1 AND gateway_tx_id=$2 LIMIT 1`, orderID, txID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNoPayment
	}
	return p, err
}

func (r *Repo) MarkCompleted(ctx context.Context, id, txID, bankCode string, raw []byte, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payments
		SET status=$2, gateway_tx_id=$3, bank_code=$4, raw_payload=$5, completed_at=$6
		WHERE id=$1`, id, StatusCompleted, txID, bankCode, raw, at)
	return err
}

func (r *Repo) MarkFailed(ctx context.Context, id, note string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE payments SET status=$2, note=$3 WHERE id=$1`, id, StatusFailed, note)
	return err
}
