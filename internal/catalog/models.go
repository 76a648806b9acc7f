package catalog

import "time"

type Product struct {
	ID        string
	Name      string
	Price     int64 // VND, minor units
	Discount  int   // percent, 0..100
	InStock   int
	Sold      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectivePrice is the unit price after discount. This is the value
// snapshotted into carts and order lines.
func (p Product) EffectivePrice() int64 {
	if p.Discount <= 0 {
		return p.Price
	}
	return p.Price * int64(100-p.Discount) / 100
}
