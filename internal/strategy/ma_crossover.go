package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"backtester/internal/schema"
	"backtester/pkg/exception"
)

const MACrossoverName = "ma_crossover"

const (
	defaultFastPeriod   = 10
	defaultSlowPeriod   = 30
	defaultInstrument   = "BTCUSD"
	defaultPositionSize = 1
)

func init() {
	Register(MACrossoverName, newMACrossoverFromParams)
}

// MACrossover compares a fast and a slow simple moving average over a
// trailing price window and proposes one limit order the first time they
// diverge. After that the position counts as open for the rest of the run.
//
// Averages are recomputed from the window on every tick, O(slow) per tick.
type MACrossover struct {
	Base

	fast       int
	slow       int
	size       decimal.Decimal
	instrument string

	window       []decimal.Decimal
	fastMA       decimal.Decimal
	slowMA       decimal.Decimal
	positionOpen bool
	positionSide schema.OrderSide
}

// NewMACrossover validates the periods and size. fast must be strictly
// smaller than slow.
func NewMACrossover(fast, slow int, size decimal.Decimal, instrument string) (*MACrossover, error) {
	if fast <= 0 || slow <= 0 {
		return nil, errors.Wrapf(exception.ErrStrategyConfig, "periods must be > 0, fast: %d, slow: %d", fast, slow)
	}
	if fast >= slow {
		return nil, errors.Wrapf(exception.ErrStrategyConfig, "fast period must be smaller than slow period, fast: %d, slow: %d", fast, slow)
	}
	if !size.IsPositive() {
		return nil, errors.Wrapf(exception.ErrStrategyConfig, "position size must be > 0, size: %s", size)
	}
	if instrument == "" {
		instrument = defaultInstrument
	}
	return &MACrossover{
		fast:       fast,
		slow:       slow,
		size:       size,
		instrument: instrument,
		window:     make([]decimal.Decimal, 0, slow),
	}, nil
}

func newMACrossoverFromParams(params Params) (Strategy, error) {
	fast, err := params.Int("fast", defaultFastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := params.Int("slow", defaultSlowPeriod)
	if err != nil {
		return nil, err
	}
	size, err := params.Decimal("size", decimal.NewFromInt(defaultPositionSize))
	if err != nil {
		return nil, err
	}
	return NewMACrossover(fast, slow, size, params.Text("instrument", defaultInstrument))
}

func (s *MACrossover) Initialize() {
	s.window = s.window[:0]
	s.fastMA = decimal.Zero
	s.slowMA = decimal.Zero
	s.positionOpen = false
	s.positionSide = 0
	logs.Infof("Initialized %s strategy", s.Name())
}

func (s *MACrossover) OnTick(tick schema.Tick) Decision {
	s.push(tick.Price)
	if len(s.window) < s.slow {
		return Decision{}
	}
	if s.positionOpen {
		return Decision{}
	}

	var side schema.OrderSide
	switch {
	case s.fastMA.GreaterThan(s.slowMA):
		side = schema.OrderSideBuy
	case s.fastMA.LessThan(s.slowMA):
		side = schema.OrderSideSell
	default:
		return Decision{}
	}

	logs.Infof("%s Signal at price: %s (Fast MA: %s, Slow MA: %s)",
		side, tick.Price, s.fastMA.StringFixed(4), s.slowMA.StringFixed(4))
	s.positionOpen = true
	s.positionSide = side
	return Decision{
		Signal: true,
		Orders: []schema.Order{{
			Instrument: s.instrument,
			Type:       schema.OrderTypeLimit,
			Side:       side,
			Quantity:   s.size,
			Price:      tick.Price,
			CreatedAt:  tick.Timestamp,
		}},
	}
}

func (s *MACrossover) OnExecution(exec schema.Execution) {
	logs.Infof("Execution received in strategy for order: %s", exec.OrderID)
}

func (s *MACrossover) Name() string {
	return fmt.Sprintf("MovingAverageCrossover(%d,%d)", s.fast, s.slow)
}

// Averages returns the current fast and slow averages. Both are zero until
// enough prices were seen for the respective period.
func (s *MACrossover) Averages() (fast, slow decimal.Decimal) {
	return s.fastMA, s.slowMA
}

// PositionOpen reports whether a signal already fired, and on which side.
func (s *MACrossover) PositionOpen() (bool, schema.OrderSide) {
	return s.positionOpen, s.positionSide
}

func (s *MACrossover) push(price decimal.Decimal) {
	s.window = append(s.window, price)
	if len(s.window) > s.slow {
		copy(s.window, s.window[1:])
		s.window = s.window[:s.slow]
	}
	s.fastMA = average(s.window, s.fast)
	s.slowMA = average(s.window, s.slow)
}

func average(window []decimal.Decimal, period int) decimal.Decimal {
	if len(window) < period {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range window[len(window)-period:] {
		sum = sum.Add(p)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}
