// Package matcher simulates fills of open orders against the tick stream.
package matcher

import (
	stderrors "errors"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"backtester/internal/obs"
	"backtester/internal/schema"
)

// Store is the part of the order store the matcher needs.
type Store interface {
	Orders(statuses ...schema.OrderStatus) []schema.Order
	RecordExecution(exec schema.Execution) (schema.Execution, error)
}

// Matcher fills open orders with a fixed absolute slippage.
type Matcher struct {
	store   Store
	metrics *obs.Metrics

	mu       sync.RWMutex
	slippage decimal.Decimal
}

// New creates a matcher with zero slippage.
func New(store Store, metrics *obs.Metrics) *Matcher {
	return &Matcher{store: store, metrics: metrics}
}

// SetSlippage replaces the slippage applied to every fill. Negative values
// invert the adjustment.
func (m *Matcher) SetSlippage(amount float64) {
	m.SetSlippageDecimal(decimal.NewFromFloat(amount))
}

// SetSlippageDecimal is SetSlippage without the float conversion.
func (m *Matcher) SetSlippageDecimal(amount decimal.Decimal) {
	m.mu.Lock()
	m.slippage = amount
	m.mu.Unlock()
}

// Slippage returns the configured slippage.
func (m *Matcher) Slippage() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slippage
}

// ProcessTick fills every eligible OPEN order at tick and returns the
// executions recorded. A failure on one order does not stop the scan; all
// failures are returned joined.
func (m *Matcher) ProcessTick(tick schema.Tick) ([]schema.Execution, error) {
	slippage := m.Slippage()

	var (
		fills []schema.Execution
		errs  []error
	)
	for _, o := range m.store.Orders(schema.OrderStatusOpen) {
		if !Eligible(o, tick) {
			continue
		}
		exec, err := m.store.RecordExecution(schema.Execution{
			OrderID:    o.ID,
			Instrument: o.Instrument,
			Side:       o.Side,
			Price:      ExecutionPrice(o, tick, slippage),
			Quantity:   o.Quantity,
			Timestamp:  tick.Timestamp,
		})
		if err != nil {
			logs.Warnf("record execution for %s, err: %+v", o.ID, err)
			errs = append(errs, errors.Wrapf(err, "fill %s", o.ID))
			continue
		}
		m.metrics.IncExecution()
		logs.Infof("Order executed: %s at price: %s", o.ID, exec.Price)
		fills = append(fills, exec)
	}
	return fills, stderrors.Join(errs...)
}

// Eligible reports whether o fills at tick. STOP and STOP_LIMIT never fill.
func Eligible(o schema.Order, tick schema.Tick) bool {
	switch o.Type {
	case schema.OrderTypeMarket:
		return true
	case schema.OrderTypeLimit:
		if o.Side == schema.OrderSideBuy {
			return tick.Price.LessThanOrEqual(o.Price)
		}
		return tick.Price.GreaterThanOrEqual(o.Price)
	default:
		return false
	}
}

// ExecutionPrice applies slippage against the taker: buys pay more, sells
// receive less, and a limit order never fills worse than its limit.
func ExecutionPrice(o schema.Order, tick schema.Tick, slippage decimal.Decimal) decimal.Decimal {
	switch o.Type {
	case schema.OrderTypeMarket:
		if o.Side == schema.OrderSideBuy {
			return tick.Price.Add(slippage)
		}
		return tick.Price.Sub(slippage)
	case schema.OrderTypeLimit:
		if o.Side == schema.OrderSideBuy {
			return decimal.Min(o.Price, tick.Price.Add(slippage))
		}
		return decimal.Max(o.Price, tick.Price.Sub(slippage))
	default:
		return tick.Price
	}
}
