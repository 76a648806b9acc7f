package payments

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Method string

const (
	MethodCOD     Method = "COD"
	MethodQR      Method = "QR_TRANSFER"
	MethodCrypto  Method = "CRYPTO"
	MethodGateway Method = "GATEWAY_TRANSFER"
)

func ValidMethod(m Method) bool {
	switch m {
	case MethodCOD, MethodQR, MethodCrypto, MethodGateway:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED" // terminal
	StatusFailed    Status = "FAILED"    // terminal, amount mismatch
)

// Payment is one attempt against an order. An order may accumulate several
// attempts but at most one reaches COMPLETED.
type Payment struct {
	ID              string
	OrderID         string
	UserID          string
	Amount          int64 // expected, copied from order total
	Method          Method
	Status          Status
	GatewayTxID     string // idempotency key for webhook replay
	BankCode        string
	TransferContent string // DH<orderID>, correlates inbound bank transfers
	Note            string
	RawPayload      []byte // last gateway payload, audit only
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// NewInitial builds the Pending payment created alongside an order.
func NewInitial(orderID, userID string, amount int64, m Method) Payment {
	return Payment{
		ID:              uuid.NewString(),
		OrderID:         orderID,
		UserID:          userID,
		Amount:          amount,
		Method:          m,
		Status:          StatusPending,
		TransferContent: TransferContent(orderID),
		CreatedAt:       time.Now().UTC(),
	}
}

// TransferContent is the code the payer must put in the bank-transfer note.
func TransferContent(orderID string) string {
	return "DH" + strings.ToUpper(orderID)
}
