package state

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"backtester/internal/schema"
)

// Book derives positions from the execution stream. It is safe for
// concurrent use so it can be registered directly as a store observer.
type Book struct {
	mu        sync.Mutex
	positions map[string]*entry
}

type entry struct {
	pos  schema.Position
	mark decimal.Decimal
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{positions: make(map[string]*entry)}
}

// ApplyExecution folds a fill into its instrument's position and returns the
// updated position.
func (b *Book) ApplyExecution(exec schema.Execution) schema.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(exec.Instrument)
	delta := exec.Quantity
	if exec.Side == schema.OrderSideSell {
		delta = delta.Neg()
	}

	p := &e.pos
	switch {
	case delta.IsZero():
	case p.Quantity.IsZero() || p.Quantity.Sign() == delta.Sign():
		size := p.Quantity.Abs()
		p.AvgEntryPrice = size.Mul(p.AvgEntryPrice).Add(exec.Quantity.Mul(exec.Price)).Div(size.Add(exec.Quantity))
		p.Quantity = p.Quantity.Add(delta)
	default:
		closed := decimal.Min(p.Quantity.Abs(), exec.Quantity)
		pnl := exec.Price.Sub(p.AvgEntryPrice).Mul(closed)
		if p.Quantity.IsNegative() {
			pnl = pnl.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(pnl)

		prevSign := p.Quantity.Sign()
		p.Quantity = p.Quantity.Add(delta)
		switch {
		case p.Quantity.IsZero():
			p.AvgEntryPrice = decimal.Zero
		case p.Quantity.Sign() != prevSign:
			p.AvgEntryPrice = exec.Price
		}
	}

	e.mark = exec.Price
	p.UnrealizedPnL = unrealized(*p, e.mark)
	return *p
}

// Mark revalues the open quantity of instrument at price.
func (b *Book) Mark(instrument string, price decimal.Decimal) schema.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(instrument)
	e.mark = price
	e.pos.UnrealizedPnL = unrealized(e.pos, price)
	return e.pos
}

// MarkAll revalues every tracked instrument at price.
func (b *Book) MarkAll(price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, e := range b.positions {
		e.mark = price
		e.pos.UnrealizedPnL = unrealized(e.pos, price)
	}
}

// Position returns the current position for instrument.
func (b *Book) Position(instrument string) schema.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.positions[instrument]; ok {
		return e.pos
	}
	return schema.Position{Instrument: instrument}
}

// Positions returns all positions sorted by instrument.
func (b *Book) Positions() []schema.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]schema.Position, 0, len(b.positions))
	for _, e := range b.positions {
		out = append(out, e.pos)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument < out[j].Instrument
	})
	return out
}

// Count returns the number of tracked instruments.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}

func (b *Book) entry(instrument string) *entry {
	e, ok := b.positions[instrument]
	if !ok {
		e = &entry{pos: schema.Position{Instrument: instrument}}
		b.positions[instrument] = e
	}
	return e
}

func unrealized(p schema.Position, mark decimal.Decimal) decimal.Decimal {
	if p.Quantity.IsZero() || mark.IsZero() {
		return decimal.Zero
	}
	return mark.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}
