package events

const (
	TopicOrderCreated     = "bookstore.order.created"
	TopicPaymentCompleted = "bookstore.payment.completed"
	TopicPaymentFailed    = "bookstore.payment.failed"
)

// Partition key = order_id so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
