package order

import (
	"strings"

	"github.com/bytedance/sonic"

	"backtester/internal/schema"
)

type renderedOrder struct {
	OrderID    string  `json:"order_id"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Type       string  `json:"type"`
}

// Render returns a human-readable JSON view of o for logs. It is one-way:
// nothing parses it back.
func Render(o schema.Order) ([]byte, error) {
	return sonic.ConfigStd.MarshalIndent(renderedOrder{
		OrderID:    o.ID.String(),
		Instrument: o.Instrument,
		Side:       strings.ToLower(o.Side.String()),
		Quantity:   o.Quantity.InexactFloat64(),
		Price:      o.Price.InexactFloat64(),
		Type:       strings.ToLower(o.Type.String()),
	}, "", "  ")
}
