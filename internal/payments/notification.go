package payments

import "errors"

const (
	TransferIn  = "in"
	TransferOut = "out"
)

// Notification is the gateway webhook body. Field names follow the
// gateway's wire format.
type Notification struct {
	ID              string `json:"id"`
	Gateway         string `json:"gateway"`
	TransactionDate string `json:"transactionDate"`
	AccountNumber   string `json:"accountNumber"`
	Code            string `json:"code"` // bank transaction code
	Content         string `json:"content"`
	TransferType    string `json:"transferType"` // in | out
	TransferAmount  int64  `json:"transferAmount"`
	Accumulated     int64  `json:"accumulated"` // running balance
	ReferenceCode   string `json:"referenceCode"`
	Description     string `json:"description"`
}

// Validate checks the fields reconciliation depends on. Everything else on
// the payload is informational.
func (n Notification) Validate() error {
	switch {
	case n.ID == "":
		return errors.New("missing transaction id")
	case n.Content == "":
		return errors.New("missing transfer content")
	case n.TransferAmount <= 0:
		return errors.New("missing transfer amount")
	case n.Code == "":
		return errors.New("missing bank code")
	}
	return nil
}
