package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datmqhust/bookstore-orders/internal/config"
)

// AmountTolerance absorbs bank rounding/fee artifacts when matching a
// notified transfer against the expected amount, in VND minor units.
const AmountTolerance int64 = 1000

var (
	ErrNoPayment = errors.New("no payment for order")
	ErrNoPending = errors.New("no pending payment for order")
)

type OutcomeTag string

const (
	OutcomeSuccess   OutcomeTag = "success"
	OutcomeDuplicate OutcomeTag = "duplicate"
	OutcomeFailed    OutcomeTag = "failed"
	OutcomeIgnored   OutcomeTag = "ignored"
)

type Outcome struct {
	Tag     OutcomeTag
	Reason  string
	Payment *Payment // set on success and failed
}

func ignored(reason string) Outcome {
	return Outcome{Tag: OutcomeIgnored, Reason: reason}
}

func duplicate(reason string) Outcome {
	return Outcome{Tag: OutcomeDuplicate, Reason: reason}
}

type PaymentStore interface {
	Create(ctx context.Context, p Payment) error
	LatestByOrder(ctx context.Context, orderID string) (Payment, error)
	LatestPending(ctx context.Context, orderID string, m Method) (Payment, error)
	FindByGatewayTx(ctx context.Context, orderID, txID string) (Payment, error)
	MarkCompleted(ctx context.Context, id, txID, bankCode string, raw []byte, at time.Time) error
	MarkFailed(ctx context.Context, id, note string) error
}

type OrderMarker interface {
	// MarkPaid advances the order to paymentStatus=PAID, status=PROCESSING.
	MarkPaid(ctx context.Context, orderID string) error
}

// Reconciler advances a Payment from Pending to a terminal state, either by
// trusted direct confirmation or by a gateway webhook notification. The
// invariant both paths share: a payment completes at most once, and
// completing it always advances its order's status pair.
type Reconciler struct {
	Payments PaymentStore
	Orders   OrderMarker
	Gateway  config.Gateway
	Log      *slog.Logger
}

// Confirm is the trusted path (COD completion, manually verified transfer).
// No amount validation here.
func (r *Reconciler) Confirm(ctx context.Context, orderID, txCode string) (Payment, error) {
	p, err := r.Payments.LatestByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status == StatusCompleted {
		return p, nil
	}

	now := time.Now().UTC()
	if err := r.Payments.MarkCompleted(ctx, p.ID, txCode, "", nil, now); err != nil {
		return Payment{}, err
	}
	if err := r.Orders.MarkPaid(ctx, orderID); err != nil {
		return Payment{}, err
	}
	p.Status = StatusCompleted
	p.GatewayTxID = txCode
	p.CompletedAt = &now
	r.Log.Info("payment confirmed", "order_id", orderID, "payment_id", p.ID)
	return p, nil
}

// HandleNotification reconciles one inbound gateway webhook. raw is the
// original request body, stored on the payment for audit. Business no-ops
// (outbound noise, mistyped notes, replays) come back as outcomes, never as
// errors; an error means storage failed and the gateway should redeliver.
func (r *Reconciler) HandleNotification(ctx context.Context, n Notification, raw []byte) (Outcome, error) {
	if n.TransferType != TransferIn {
		return ignored("outbound transfer"), nil
	}

	orderID, ok := ParseTransferContent(n.Content)
	if !ok {
		r.Log.Info("webhook content without order reference", "tx_id", n.ID)
		return ignored("no order reference in transfer content"), nil
	}

	p, err := r.Payments.LatestPending(ctx, orderID, MethodGateway)
	if errors.Is(err, ErrNoPending) {
		// Replay after completion must come back as duplicate, not ignored.
		if prev, ferr := r.Payments.FindByGatewayTx(ctx, orderID, n.ID); ferr == nil && prev.Status == StatusCompleted {
			return duplicate("transaction already applied"), nil
		}
		return ignored("no pending gateway payment for order"), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	if p.GatewayTxID != "" && p.GatewayTxID == n.ID {
		return duplicate("transaction already recorded"), nil
	}

	if diff := absDiff(p.Amount, n.TransferAmount); diff > AmountTolerance {
		note := fmt.Sprintf("transfer amount %d does not match expected %d", n.TransferAmount, p.Amount)
		if err := r.Payments.MarkFailed(ctx, p.ID, note); err != nil {
			return Outcome{}, err
		}
		p.Status = StatusFailed
		p.Note = note
		r.Log.Warn("payment amount mismatch", "order_id", orderID, "payment_id", p.ID,
			"expected", p.Amount, "got", n.TransferAmount)
		return Outcome{Tag: OutcomeFailed, Reason: "amount mismatch", Payment: &p}, nil
	}

	now := time.Now().UTC()
	if err := r.Payments.MarkCompleted(ctx, p.ID, n.ID, n.Code, raw, now); err != nil {
		return Outcome{}, err
	}
	if err := r.Orders.MarkPaid(ctx, orderID); err != nil {
		return Outcome{}, err
	}
	p.Status = StatusCompleted
	p.GatewayTxID = n.ID
	p.BankCode = n.Code
	p.CompletedAt = &now
	r.Log.Info("payment completed via webhook", "order_id", orderID, "payment_id", p.ID, "tx_id", n.ID)
	return Outcome{Tag: OutcomeSuccess, Payment: &p}, nil
}

// Instructions is what the frontend shows on the transfer screen: where to
// send the money and which note to attach.
type Instructions struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Amount        int64  `json:"amount"`
	Content       string `json:"content"`
	Status        Status `json:"status"`
}

func (r *Reconciler) InstructionsFor(ctx context.Context, orderID string) (Instructions, error) {
	p, err := r.Payments.LatestByOrder(ctx, orderID)
	if err != nil {
		return Instructions{}, err
	}
	return Instructions{
		BankCode:      r.Gateway.BankCode,
		AccountNumber: r.Gateway.AccountNumber,
		AccountName:   r.Gateway.AccountName,
		Amount:        p.Amount,
		Content:       p.TransferContent,
		Status:        p.Status,
	}, nil
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
