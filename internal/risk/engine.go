package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"backtester/internal/schema"
)

// Config defines pre-trade limits. A zero limit disables its check.
type Config struct {
	KillSwitch           bool            `json:"killSwitch"`
	MaxOrderQty          decimal.Decimal `json:"maxOrderQty"`
	MaxOrderNotional     decimal.Decimal `json:"maxOrderNotional"`
	MaxPosition          decimal.Decimal `json:"maxPosition"`
	OrderRateLimit       int             `json:"orderRateLimit"`
	OrderRateWindow      time.Duration   `json:"orderRateWindow"`
	MaxPriceDeviationBps int64           `json:"maxPriceDeviationBps"`
}

// StateView is what the engine knows about the account when evaluating.
type StateView struct {
	Position       decimal.Decimal
	ReferencePrice decimal.Decimal
	Now            time.Time
}

// Engine evaluates orders before they open.
type Engine struct {
	cfg             Config
	rateWindowStart time.Time
	rateCount       int
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

var bps = decimal.NewFromInt(10_000)

// Evaluate applies the checks in a fixed order and stops at the first denial.
func (e *Engine) Evaluate(o schema.Order, state StateView) schema.RiskDecision {
	decision := schema.RiskDecision{
		OrderID: o.ID,
		Action:  schema.RiskActionAllow,
		Reason:  schema.RiskReasonNone,
	}
	deny := func(reason schema.RiskReason) schema.RiskDecision {
		decision.Action = schema.RiskActionDeny
		decision.Reason = reason
		return decision
	}

	if o.Type != schema.OrderTypeMarket && o.Type != schema.OrderTypeLimit {
		return deny(schema.RiskReasonUnsupportedType)
	}

	if e.cfg.KillSwitch {
		return deny(schema.RiskReasonKillSwitch)
	}

	now := state.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if e.cfg.OrderRateLimit > 0 && e.cfg.OrderRateWindow > 0 {
		if e.rateWindowStart.IsZero() || now.Sub(e.rateWindowStart) >= e.cfg.OrderRateWindow {
			e.rateWindowStart = now
			e.rateCount = 0
		}
		e.rateCount++
		if e.rateCount > e.cfg.OrderRateLimit {
			return deny(schema.RiskReasonRateLimit)
		}
	}

	if e.cfg.MaxOrderQty.IsPositive() && o.Quantity.GreaterThan(e.cfg.MaxOrderQty) {
		return deny(schema.RiskReasonMaxQty)
	}

	price := o.Price
	if o.Type == schema.OrderTypeMarket || !price.IsPositive() {
		price = state.ReferencePrice
	}

	if e.cfg.MaxPriceDeviationBps > 0 && o.Type == schema.OrderTypeLimit && state.ReferencePrice.IsPositive() {
		diff := o.Price.Sub(state.ReferencePrice).Abs()
		limit := state.ReferencePrice.Mul(decimal.NewFromInt(e.cfg.MaxPriceDeviationBps)).Div(bps)
		if diff.GreaterThan(limit) {
			return deny(schema.RiskReasonPriceBand)
		}
	}

	if e.cfg.MaxOrderNotional.IsPositive() && price.Mul(o.Quantity).Abs().GreaterThan(e.cfg.MaxOrderNotional) {
		return deny(schema.RiskReasonMaxNotional)
	}

	next := applySide(state.Position, o.Side, o.Quantity)
	if e.cfg.MaxPosition.IsPositive() && next.Abs().GreaterThan(e.cfg.MaxPosition) {
		return deny(schema.RiskReasonPositionLimit)
	}

	return decision
}

func applySide(pos decimal.Decimal, side schema.OrderSide, qty decimal.Decimal) decimal.Decimal {
	switch side {
	case schema.OrderSideBuy:
		return pos.Add(qty)
	case schema.OrderSideSell:
		return pos.Sub(qty)
	default:
		return pos
	}
}
