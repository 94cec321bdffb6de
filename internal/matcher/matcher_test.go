package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/obs"
	"backtester/internal/order"
	"backtester/internal/schema"
)

func tickAt(sec int64, price string) schema.Tick {
	return schema.Tick{
		Timestamp: time.Unix(sec, 0).UTC(),
		Price:     decimal.RequireFromString(price),
		Volume:    decimal.NewFromInt(1),
	}
}

func openOrder(t *testing.T, s *order.Store, typ schema.OrderType, side schema.OrderSide, price string) schema.OrderID {
	t.Helper()
	o := schema.Order{
		Instrument: "BTCUSD",
		Type:       typ,
		Side:       side,
		Quantity:   decimal.NewFromInt(1),
	}
	if price != "" {
		o.Price = decimal.RequireFromString(price)
	}
	id, err := s.Submit(o)
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(id, schema.OrderStatusOpen))
	return id
}

func TestLimitBuyBoundaryIsInclusive(t *testing.T) {
	s := order.NewStore()
	m := New(s, nil)
	id := openOrder(t, s, schema.OrderTypeLimit, schema.OrderSideBuy, "100")

	fills, err := m.ProcessTick(tickAt(0, "100"))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, id, fills[0].OrderID)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromInt(100)), fills[0].Price.String())

	got, _ := s.Get(id)
	assert.Equal(t, schema.OrderStatusFilled, got.Status)
}

func TestLimitBuyScenarioFillsOnce(t *testing.T) {
	s := order.NewStore()
	m := New(s, nil)
	m.SetSlippage(0)
	openOrder(t, s, schema.OrderTypeLimit, schema.OrderSideBuy, "100")

	var total int
	for i, price := range []string{"100", "99", "101"} {
		fills, err := m.ProcessTick(tickAt(int64(i), price))
		require.NoError(t, err)
		total += len(fills)
	}
	assert.Equal(t, 1, total)
	assert.Len(t, s.Executions(), 1)
}

func TestMarketSellWithSlippage(t *testing.T) {
	s := order.NewStore()
	m := New(s, nil)
	m.SetSlippage(0.5)
	openOrder(t, s, schema.OrderTypeMarket, schema.OrderSideSell, "")

	fills, err := m.ProcessTick(tickAt(0, "50"))
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "49.5", fills[0].Price.String())
}

func TestPendingAndStopOrdersAreNotMatched(t *testing.T) {
	s := order.NewStore()
	m := New(s, nil)
	pending, err := s.Submit(schema.Order{
		Type: schema.OrderTypeMarket, Side: schema.OrderSideBuy, Quantity: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	stop := openOrder(t, s, schema.OrderTypeStop, schema.OrderSideBuy, "10")
	stopLimit := openOrder(t, s, schema.OrderTypeStopLimit, schema.OrderSideSell, "10")

	fills, err := m.ProcessTick(tickAt(0, "10"))
	require.NoError(t, err)
	assert.Empty(t, fills)

	for _, id := range []schema.OrderID{pending, stop, stopLimit} {
		o, _ := s.Get(id)
		assert.False(t, o.Status == schema.OrderStatusFilled, "%s should not fill", id)
	}
}

func TestExecutionPriceRules(t *testing.T) {
	slip := decimal.RequireFromString("0.25")
	testCases := []struct {
		desc     string
		typ      schema.OrderType
		side     schema.OrderSide
		limit    string
		tick     string
		expected string
	}{
		{"market buy", schema.OrderTypeMarket, schema.OrderSideBuy, "0", "100", "100.25"},
		{"market sell", schema.OrderTypeMarket, schema.OrderSideSell, "0", "100", "99.75"},
		{"limit buy capped at limit", schema.OrderTypeLimit, schema.OrderSideBuy, "100.1", "100", "100.1"},
		{"limit buy below limit", schema.OrderTypeLimit, schema.OrderSideBuy, "101", "100", "100.25"},
		{"limit sell floored at limit", schema.OrderTypeLimit, schema.OrderSideSell, "99.9", "100", "99.9"},
		{"limit sell above limit", schema.OrderTypeLimit, schema.OrderSideSell, "99", "100", "99.75"},
		{"stop falls back to tick", schema.OrderTypeStop, schema.OrderSideBuy, "90", "100", "100"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			o := schema.Order{Type: tc.typ, Side: tc.side, Price: decimal.RequireFromString(tc.limit)}
			got := ExecutionPrice(o, tickAt(0, tc.tick), slip)
			assert.Truef(t, got.Equal(decimal.RequireFromString(tc.expected)), "got %s want %s", got, tc.expected)
		})
	}
}

func TestNegativeSlippageInvertsAdjustment(t *testing.T) {
	o := schema.Order{Type: schema.OrderTypeMarket, Side: schema.OrderSideBuy}
	got := ExecutionPrice(o, tickAt(0, "10"), decimal.NewFromInt(-1))
	assert.Equal(t, "9", got.String())
}

func TestSetSlippageReplaces(t *testing.T) {
	m := New(order.NewStore(), nil)
	m.SetSlippage(0.01)
	m.SetSlippage(0.02)
	assert.Equal(t, "0.02", m.Slippage().String())
}

func TestExecutionsCounted(t *testing.T) {
	metrics := obs.NewMetrics()
	s := order.NewStore()
	m := New(s, metrics)
	openOrder(t, s, schema.OrderTypeMarket, schema.OrderSideBuy, "")
	openOrder(t, s, schema.OrderTypeMarket, schema.OrderSideSell, "")

	fills, err := m.ProcessTick(tickAt(0, "10"))
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Less(t, uint64(fills[0].OrderID), uint64(fills[1].OrderID))

	summary, err := metrics.Summary()
	require.NoError(t, err)
	assert.Equal(t, 2.0, summary["backtester_matcher_executions_total"])
}
