// Package order implements the order-collection dialogue: a linear
// state machine that gathers customer name, item, price, and quantity,
// validates each answer, and produces an immutable order record.
package order

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// State is a step in the order-collection sequence.
type State string

const (
	StateAwaitingCustomerName State = "awaiting_customer_name"
	StateAwaitingOrderItem    State = "awaiting_order_item"
	StateAwaitingPrice        State = "awaiting_price"
	StateAwaitingQuantity     State = "awaiting_quantity"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
)

// Terminal reports whether no further transitions are accepted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Field names used in validation errors and event payloads.
const (
	FieldCustomerName = "customer_name"
	FieldOrderItem    = "order_item"
	FieldPrice        = "price"
	FieldQuantity     = "quantity"
)

// Fields accumulates validated answers. A member is set only after the
// corresponding state accepted its input, so the set of populated members
// always matches the states already passed.
type Fields struct {
	CustomerName string
	OrderItem    string
	Price        *decimal.Decimal
	Quantity     *int64
}

// OrderRecord is the finalized result of a completed order flow. It is
// produced exactly once per completion and never mutated afterwards.
type OrderRecord struct {
	CustomerName string
	OrderItem    string
	Price        decimal.Decimal
	Quantity     int64
	TotalPrice   decimal.Decimal
}

// formatDecimal renders a decimal with its stored scale. Decimal.String
// trims trailing zeros, which would turn a price entered as "3.50" into
// "3.5"; the exponent survives parsing and multiplication, so rendering
// at -exponent places restores the entered scale (3.50 × 4 → "14.00").
func formatDecimal(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

// PriceText renders the unit price with the scale it was entered with.
func (r OrderRecord) PriceText() string { return formatDecimal(r.Price) }

// TotalPriceText renders the total with the unit price's scale.
func (r OrderRecord) TotalPriceText() string { return formatDecimal(r.TotalPrice) }

// orderRecordJSON is the wire shape of an OrderRecord. Monetary values
// serialize as bare JSON numbers with their exact decimal scale preserved,
// so a price entered as "3.50" stays "3.50" and not "3.5".
type orderRecordJSON struct {
	CustomerName string      `json:"customer_name"`
	OrderItem    string      `json:"order_item"`
	Price        json.Number `json:"price"`
	Quantity     int64       `json:"quantity"`
	TotalPrice   json.Number `json:"total_price"`
}

func (r OrderRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderRecordJSON{
		CustomerName: r.CustomerName,
		OrderItem:    r.OrderItem,
		Price:        json.Number(formatDecimal(r.Price)),
		Quantity:     r.Quantity,
		TotalPrice:   json.Number(formatDecimal(r.TotalPrice)),
	})
}

func (r *OrderRecord) UnmarshalJSON(data []byte) error {
	var w orderRecordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	price, err := decimal.NewFromString(w.Price.String())
	if err != nil {
		return err
	}
	total, err := decimal.NewFromString(w.TotalPrice.String())
	if err != nil {
		return err
	}
	r.CustomerName = w.CustomerName
	r.OrderItem = w.OrderItem
	r.Price = price
	r.Quantity = w.Quantity
	r.TotalPrice = total
	return nil
}
