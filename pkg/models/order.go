package models

type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Order is a backend-confirmed order. The id and time are assigned by the
// backend on submission; the client never displays an order before the
// backend has acknowledged it.
type Order struct {
	ID       int       `json:"id"`
	Time     string    `json:"time"`
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price"`
}

// Total is the order notional (quantity x price).
func (o Order) Total() float64 {
	return float64(o.Quantity) * o.Price
}

// OrderDraft is the user-editable, not-yet-submitted order. Validation tags
// mirror the backend's minimums; the backend remains the authority.
type OrderDraft struct {
	Symbol   string    `json:"symbol" validate:"required"`
	Side     OrderSide `json:"side" validate:"required,oneof=buy sell"`
	Quantity int       `json:"quantity" validate:"required,min=1"`
	Price    float64   `json:"price" validate:"required,gte=0.01"`
}
