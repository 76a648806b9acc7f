package orders

// Fulfillment status, driven by admin actions.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Payment status, driven by reconciliation. Independent of fulfillment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentFailed  PaymentStatus = "FAILED"
)

var validNextPayment = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {PaymentPaid: true, PaymentFailed: true},
	PaymentPaid:    {},
	PaymentFailed:  {},
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validNextPayment[from][to]
}
