package schema

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// OrderID is the engine-assigned order identifier.
type OrderID uint64

func (id OrderID) String() string {
	return "order_" + strconv.FormatUint(uint64(id), 10)
}

// ExecutionID is the engine-assigned execution identifier.
type ExecutionID uint64

func (id ExecutionID) String() string {
	return "exec_" + strconv.FormatUint(uint64(id), 10)
}

// Tick is a single point-in-time market observation.
type Tick struct {
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
}

// Order is a request to buy or sell a quantity of an instrument.
type Order struct {
	ID         OrderID
	Instrument string
	Type       OrderType
	Side       OrderSide
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	CreatedAt  time.Time
	Status     OrderStatus
}

// Execution records that an order was matched at a price, quantity and time.
type Execution struct {
	OrderID     OrderID
	ExecutionID ExecutionID
	Instrument  string
	Side        OrderSide
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   time.Time
}

// Notional returns price * quantity.
func (e Execution) Notional() decimal.Decimal {
	return e.Price.Mul(e.Quantity)
}

// Position is an aggregate derived from the execution stream.
type Position struct {
	Instrument    string          `json:"instrument"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avgEntryPrice"`
	RealizedPnL   decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
}

// RiskAction is the outcome of a pre-trade risk check.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

func (a RiskAction) String() string {
	switch a {
	case RiskActionAllow:
		return "allow"
	case RiskActionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonMaxQty
	RiskReasonMaxNotional
	RiskReasonRateLimit
	RiskReasonPriceBand
	RiskReasonPositionLimit
	RiskReasonUnsupportedType
)

func (r RiskReason) String() string {
	switch r {
	case RiskReasonNone:
		return "none"
	case RiskReasonKillSwitch:
		return "kill_switch"
	case RiskReasonMaxQty:
		return "max_qty"
	case RiskReasonMaxNotional:
		return "max_notional"
	case RiskReasonRateLimit:
		return "rate_limit"
	case RiskReasonPriceBand:
		return "price_band"
	case RiskReasonPositionLimit:
		return "position_limit"
	case RiskReasonUnsupportedType:
		return "unsupported_type"
	default:
		return "unknown"
	}
}

// RiskDecision is the result of evaluating an order before it opens.
type RiskDecision struct {
	OrderID OrderID
	Action  RiskAction
	Reason  RiskReason
}
