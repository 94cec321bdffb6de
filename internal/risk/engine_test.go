package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"backtester/internal/schema"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func limitOrder(side schema.OrderSide, price, qty string) schema.Order {
	return schema.Order{
		ID:       1,
		Type:     schema.OrderTypeLimit,
		Side:     side,
		Price:    d(price),
		Quantity: d(qty),
	}
}

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		desc     string
		cfg      Config
		order    schema.Order
		state    StateView
		expected schema.RiskReason
	}{
		{
			"no limits allows",
			Config{},
			limitOrder(schema.OrderSideBuy, "100", "1"),
			StateView{},
			schema.RiskReasonNone,
		},
		{
			"stop is unsupported",
			Config{},
			schema.Order{Type: schema.OrderTypeStop, Side: schema.OrderSideBuy, Price: d("1"), Quantity: d("1")},
			StateView{},
			schema.RiskReasonUnsupportedType,
		},
		{
			"stop limit is unsupported",
			Config{},
			schema.Order{Type: schema.OrderTypeStopLimit, Side: schema.OrderSideSell, Price: d("1"), Quantity: d("1")},
			StateView{},
			schema.RiskReasonUnsupportedType,
		},
		{
			"kill switch",
			Config{KillSwitch: true},
			limitOrder(schema.OrderSideBuy, "100", "1"),
			StateView{},
			schema.RiskReasonKillSwitch,
		},
		{
			"max qty",
			Config{MaxOrderQty: d("5")},
			limitOrder(schema.OrderSideBuy, "100", "6"),
			StateView{},
			schema.RiskReasonMaxQty,
		},
		{
			"price band",
			Config{MaxPriceDeviationBps: 100},
			limitOrder(schema.OrderSideBuy, "102", "1"),
			StateView{ReferencePrice: d("100")},
			schema.RiskReasonPriceBand,
		},
		{
			"inside price band",
			Config{MaxPriceDeviationBps: 100},
			limitOrder(schema.OrderSideBuy, "101", "1"),
			StateView{ReferencePrice: d("100")},
			schema.RiskReasonNone,
		},
		{
			"max notional uses reference for market orders",
			Config{MaxOrderNotional: d("500")},
			schema.Order{Type: schema.OrderTypeMarket, Side: schema.OrderSideSell, Quantity: d("6")},
			StateView{ReferencePrice: d("100")},
			schema.RiskReasonMaxNotional,
		},
		{
			"position limit",
			Config{MaxPosition: d("3")},
			limitOrder(schema.OrderSideSell, "100", "2"),
			StateView{Position: d("-2")},
			schema.RiskReasonPositionLimit,
		},
		{
			"reducing position is allowed",
			Config{MaxPosition: d("3")},
			limitOrder(schema.OrderSideSell, "100", "2"),
			StateView{Position: d("3")},
			schema.RiskReasonNone,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			decision := NewEngine(tc.cfg).Evaluate(tc.order, tc.state)
			assert.Equal(t, tc.expected, decision.Reason)
			if tc.expected == schema.RiskReasonNone {
				assert.Equal(t, schema.RiskActionAllow, decision.Action)
			} else {
				assert.Equal(t, schema.RiskActionDeny, decision.Action)
			}
		})
	}
}

func TestEvaluateRateLimit(t *testing.T) {
	e := NewEngine(Config{OrderRateLimit: 2, OrderRateWindow: time.Second})
	base := time.Unix(100, 0)
	o := limitOrder(schema.OrderSideBuy, "1", "1")

	assert.Equal(t, schema.RiskActionAllow, e.Evaluate(o, StateView{Now: base}).Action)
	assert.Equal(t, schema.RiskActionAllow, e.Evaluate(o, StateView{Now: base.Add(100 * time.Millisecond)}).Action)
	assert.Equal(t, schema.RiskReasonRateLimit, e.Evaluate(o, StateView{Now: base.Add(200 * time.Millisecond)}).Reason)
	assert.Equal(t, schema.RiskActionAllow, e.Evaluate(o, StateView{Now: base.Add(time.Second)}).Action)
}
