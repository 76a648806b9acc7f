package cart

import "time"

// Item carries the price snapshot taken when the item was added or its
// quantity last updated. Later product price changes do not flow into it.
type Item struct {
	ProductID string
	Name      string
	Qty       int
	Price     int64
}

type Cart struct {
	ID        string
	UserID    string
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c Cart) Total() int64 {
	var sum int64
	for _, it := range c.Items {
		sum += it.Price * int64(it.Qty)
	}
	return sum
}
