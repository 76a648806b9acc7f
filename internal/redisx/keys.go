package redisx

import "time"

const (
	// Idempotency for order creation: idem:order:create:{request_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache status pair per order: order_status:{order_id} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event/webhook processing: dedup:{consumer}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
