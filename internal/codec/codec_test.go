package codec

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/schema"
)

var ts = time.Date(2024, 3, 1, 9, 30, 0, 125_000_000, time.UTC)

func TestTickRoundTrip(t *testing.T) {
	tick := schema.Tick{
		Timestamp: ts,
		Price:     decimal.RequireFromString("101.25"),
		Volume:    decimal.RequireFromString("0.003"),
	}
	buf, err := EncodeTick(nil, tick)
	require.NoError(t, err)
	assert.Len(t, buf, TickPayloadSize)

	got, err := DecodeTick(buf)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(tick.Timestamp))
	assert.True(t, got.Price.Equal(tick.Price))
	assert.True(t, got.Volume.Equal(tick.Volume))
}

func TestOrderRoundTrip(t *testing.T) {
	o := schema.Order{
		ID:         42,
		Instrument: "ETHUSD",
		Type:       schema.OrderTypeLimit,
		Side:       schema.OrderSideSell,
		Quantity:   decimal.RequireFromString("1.5"),
		Price:      decimal.RequireFromString("2500.10"),
		CreatedAt:  ts,
		Status:     schema.OrderStatusOpen,
	}
	buf, err := EncodeOrder(make([]byte, 0, 64), o)
	require.NoError(t, err)

	got, err := DecodeOrder(buf)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.Instrument, got.Instrument)
	assert.Equal(t, o.Type, got.Type)
	assert.Equal(t, o.Side, got.Side)
	assert.Equal(t, o.Status, got.Status)
	assert.True(t, got.Quantity.Equal(o.Quantity))
	assert.True(t, got.Price.Equal(o.Price))
	assert.True(t, got.CreatedAt.Equal(o.CreatedAt))
}

func TestExecutionRoundTrip(t *testing.T) {
	e := schema.Execution{
		OrderID:     7,
		ExecutionID: 3,
		Instrument:  "BTCUSD",
		Side:        schema.OrderSideBuy,
		Price:       decimal.RequireFromString("-0.5"),
		Quantity:    decimal.NewFromInt(2),
		Timestamp:   ts,
	}
	buf, err := EncodeExecution(nil, e)
	require.NoError(t, err)

	got, err := DecodeExecution(buf)
	require.NoError(t, err)
	assert.Equal(t, e.OrderID, got.OrderID)
	assert.Equal(t, e.ExecutionID, got.ExecutionID)
	assert.Equal(t, e.Instrument, got.Instrument)
	assert.Equal(t, e.Side, got.Side)
	assert.True(t, got.Price.Equal(e.Price))
	assert.True(t, got.Quantity.Equal(e.Quantity))
}

func TestRiskDecisionRoundTrip(t *testing.T) {
	d := schema.RiskDecision{OrderID: 9, Action: schema.RiskActionDeny, Reason: schema.RiskReasonPriceBand}
	got, err := DecodeRiskDecision(EncodeRiskDecision(nil, d))
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDecodeShortPayload(t *testing.T) {
	buf, err := EncodeOrder(nil, schema.Order{ID: 1, Instrument: "BTCUSD", CreatedAt: ts})
	require.NoError(t, err)

	for _, n := range []int{0, 7, len(buf) - 1} {
		_, err := DecodeOrder(buf[:n])
		assert.ErrorIs(t, err, ErrShortPayload, "len %d", n)
	}
	_, err = DecodeTick(buf[:3])
	assert.ErrorIs(t, err, ErrShortPayload)
	_, err = DecodeRiskDecision(nil)
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestEncodeDecimalOverflow(t *testing.T) {
	huge := decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 70), 0)
	_, err := EncodeTick(nil, schema.Tick{Timestamp: ts, Price: huge})
	assert.ErrorIs(t, err, ErrDecimalOverflow)
}

func TestCheckDecimal(t *testing.T) {
	assert.NoError(t, CheckDecimal(decimal.RequireFromString("123.456789")))
	assert.NoError(t, CheckDecimal(decimal.RequireFromString("-9223372036854775807")))
	assert.ErrorIs(t, CheckDecimal(decimal.RequireFromString("123.4567890123456789012")), ErrDecimalOverflow)
}
