package payments

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datmqhust/bookstore-orders/internal/config"
)

type memPayments struct {
	mu   sync.Mutex
	byID map[string]*Payment
}

func newMemPayments() *memPayments {
	return &memPayments{byID: map[string]*Payment{}}
}

func (m *memPayments) Create(_ context.Context, p Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPayments) LatestByOrder(_ context.Context, orderID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Payment
	for _, p := range m.byID {
		if p.OrderID != orderID {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return Payment{}, ErrNoPayment
	}
	return *best, nil
}

func (m *memPayments) LatestPending(_ context.Context, orderID string, method Method) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Payment
	for _, p := range m.byID {
		if p.OrderID != orderID || p.Method != method || p.Status != StatusPending {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	if best == nil {
		return Payment{}, ErrNoPending
	}
	return *best, nil
}

func (m *memPayments) FindByGatewayTx(_ context.Context, orderID, txID string) (Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.OrderID == orderID && p.GatewayTxID == txID && txID != "" {
			return *p, nil
		}
	}
	return Payment{}, ErrNoPayment
}

func (m *memPayments) MarkCompleted(_ context.Context, id, txID, bankCode string, raw []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.Status = StatusCompleted
	p.GatewayTxID = txID
	p.BankCode = bankCode
	p.RawPayload = raw
	p.CompletedAt = &at
	return nil
}

func (m *memPayments) MarkFailed(_ context.Context, id, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.byID[id]
	p.Status = StatusFailed
	p.Note = note
	return nil
}

func (m *memPayments) completedCount(orderID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.byID {
		if p.OrderID == orderID && p.Status == StatusCompleted {
			n++
		}
	}
	return n
}

type memOrders struct {
	mu       sync.Mutex
	paidCall map[string]int
}

func newMemOrders() *memOrders { return &memOrders{paidCall: map[string]int{}} }

func (m *memOrders) MarkPaid(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paidCall[orderID]++
	return nil
}

func newReconciler(ps *memPayments, os *memOrders) *Reconciler {
	return &Reconciler{
		Payments: ps,
		Orders:   os,
		Gateway: config.Gateway{
			APIKey: "secret", BankCode: "MBBank",
			AccountNumber: "0000123456789", AccountName: "BOOKSTORE JSC",
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func seedPending(ps *memPayments, orderID string, amount int64) Payment {
	p := NewInitial(orderID, "u1", amount, MethodGateway)
	_ = ps.Create(context.Background(), p)
	return p
}

func notification(txID, content string, amount int64) Notification {
	return Notification{
		ID:             txID,
		Gateway:        "MBBank",
		Content:        content,
		TransferType:   TransferIn,
		TransferAmount: amount,
		Code:           "BANK1",
		ReferenceCode:  "FT123",
	}
}

func TestWebhookCompletesPayment(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seed := seedPending(ps, testOrderID, 200000)

	n := notification("tx1", "DH"+testOrderID+" note", 200000)
	out, err := r.HandleNotification(context.Background(), n, []byte(`{"id":"tx1"}`))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Tag)

	p := *ps.byID[seed.ID]
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "tx1", p.GatewayTxID)
	assert.Equal(t, "BANK1", p.BankCode)
	assert.NotEmpty(t, p.RawPayload)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, 1, os.paidCall[testOrderID])
}

func TestWebhookReplayIsDuplicate(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seed := seedPending(ps, testOrderID, 200000)

	n := notification("tx1", "DH"+testOrderID, 200000)
	out1, err := r.HandleNotification(context.Background(), n, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, out1.Tag)

	// identical redelivery: same outcome contract, no side effects reapplied
	out2, err := r.HandleNotification(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out2.Tag)
	assert.Equal(t, 1, os.paidCall[testOrderID])
	assert.Equal(t, StatusCompleted, ps.byID[seed.ID].Status)
	assert.Equal(t, 1, ps.completedCount(testOrderID))
}

func TestWebhookPendingWithRecordedTxIsDuplicate(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seed := seedPending(ps, testOrderID, 200000)
	ps.byID[seed.ID].GatewayTxID = "tx1" // recorded but not yet completed

	out, err := r.HandleNotification(context.Background(),
		notification("tx1", "DH"+testOrderID, 200000), nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out.Tag)
	assert.Equal(t, 0, os.paidCall[testOrderID])
}

func TestWebhookAmountTolerance(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		want   OutcomeTag
	}{
		{"exact", 200000, OutcomeSuccess},
		{"minus tolerance", 199000, OutcomeSuccess},
		{"plus tolerance", 201000, OutcomeSuccess},
		{"just above tolerance", 201001, OutcomeFailed},
		{"just below tolerance", 198999, OutcomeFailed},
		{"gross mismatch", 20000, OutcomeFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ps, os := newMemPayments(), newMemOrders()
			r := newReconciler(ps, os)
			seed := seedPending(ps, testOrderID, 200000)

			out, err := r.HandleNotification(context.Background(),
				notification("tx1", "DH"+testOrderID, tc.amount), nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Tag)

			p := *ps.byID[seed.ID]
			if tc.want == OutcomeFailed {
				assert.Equal(t, StatusFailed, p.Status)
				assert.NotEmpty(t, p.Note)
				// order payment status untouched on mismatch
				assert.Equal(t, 0, os.paidCall[testOrderID])
			} else {
				assert.Equal(t, StatusCompleted, p.Status)
				assert.Equal(t, 1, os.paidCall[testOrderID])
			}
		})
	}
}

func TestWebhookOutboundIgnored(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seed := seedPending(ps, testOrderID, 200000)

	n := notification("tx9", "DH"+testOrderID, 200000)
	n.TransferType = TransferOut
	out, err := r.HandleNotification(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out.Tag)
	assert.Equal(t, StatusPending, ps.byID[seed.ID].Status)
}

func TestWebhookUnmatchedContentIgnored(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seedPending(ps, testOrderID, 200000)

	out, err := r.HandleNotification(context.Background(),
		notification("tx1", "tien mua sach thang 9", 200000), nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out.Tag)
}

func TestWebhookNoPendingPaymentIgnored(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)

	out, err := r.HandleNotification(context.Background(),
		notification("tx1", "DH"+testOrderID, 200000), nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out.Tag)
	assert.Equal(t, 0, os.paidCall[testOrderID])
}

func TestAtMostOneCompletedPerOrder(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seedPending(ps, testOrderID, 200000)

	deliveries := []Notification{
		notification("tx1", "DH"+testOrderID, 200000),
		notification("tx1", "DH"+testOrderID, 200000), // replay
		notification("tx2", "DH"+testOrderID, 200000), // second transfer, no pending left
		notification("tx1", "DH"+testOrderID, 200000), // late replay
	}
	var tags []OutcomeTag
	for _, n := range deliveries {
		out, err := r.HandleNotification(context.Background(), n, nil)
		require.NoError(t, err)
		tags = append(tags, out.Tag)
	}

	assert.Equal(t, []OutcomeTag{OutcomeSuccess, OutcomeDuplicate, OutcomeIgnored, OutcomeDuplicate}, tags)
	assert.Equal(t, 1, ps.completedCount(testOrderID))
	assert.Equal(t, 1, os.paidCall[testOrderID])
}

func TestConfirmDirect(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seed := seedPending(ps, testOrderID, 200000)

	p, err := r.Confirm(context.Background(), testOrderID, "COD-DONE")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, "COD-DONE", p.GatewayTxID)
	assert.Equal(t, 1, os.paidCall[testOrderID])
	assert.Equal(t, StatusCompleted, ps.byID[seed.ID].Status)

	// confirming again is a no-op
	p2, err := r.Confirm(context.Background(), testOrderID, "COD-AGAIN")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, p2.Status)
	assert.Equal(t, 1, os.paidCall[testOrderID])
}

func TestConfirmUnknownOrder(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)

	_, err := r.Confirm(context.Background(), testOrderID, "x")
	assert.ErrorIs(t, err, ErrNoPayment)
}

func TestInstructionsFor(t *testing.T) {
	ps, os := newMemPayments(), newMemOrders()
	r := newReconciler(ps, os)
	seedPending(ps, testOrderID, 200000)

	ins, err := r.InstructionsFor(context.Background(), testOrderID)
	require.NoError(t, err)
	assert.Equal(t, "MBBank", ins.BankCode)
	assert.Equal(t, "0000123456789", ins.AccountNumber)
	assert.Equal(t, int64(200000), ins.Amount)
	assert.Equal(t, TransferContent(testOrderID), ins.Content)
	assert.Equal(t, StatusPending, ins.Status)
}
