package schema

// OrderType market, limit, stop, stop limit
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	OrderTypeStopLimit
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

// NeedsPrice reports whether the type carries a limit or trigger price.
func (t OrderType) NeedsPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStop || t == OrderTypeStopLimit
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	case OrderTypeStopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// OrderSide buy, sell
type OrderSide uint8

const (
	_order_side_beg OrderSide = iota
	OrderSideBuy
	OrderSideSell
	_order_side_end
)

func (s OrderSide) IsAvailable() bool {
	return s > _order_side_beg && s < _order_side_end
}

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus pending, open, filled, canceled, rejected
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusPending
	OrderStatusOpen
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusRejected
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// IsActive reports whether an order in this status may still be matched.
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusPending || s == OrderStatusOpen
}

// CanTransitionTo reports whether next is a legal successor of s for an
// explicit status update.
//
//	PENDING -> OPEN | REJECTED | CANCELED
//	OPEN    -> FILLED | CANCELED
//
// Recording an execution fills any active order, so a PENDING order may
// also reach FILLED that way; see IsActive.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusOpen || next == OrderStatusRejected || next == OrderStatusCanceled
	case OrderStatusOpen:
		return next == OrderStatusFilled || next == OrderStatusCanceled
	default:
		return false
	}
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusOpen:
		return "OPEN"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}
