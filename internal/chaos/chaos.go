// Package chaos perturbs a tick stream to test how strategies behave on
// degraded market data.
package chaos

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"backtester/internal/schema"
	"backtester/pkg/exception"
)

// Config controls perturbation. Zero values disable each rule.
type Config struct {
	Seed          uint64
	DropRate      float64
	DuplicateRate float64
	ReorderWindow int
	// JitterBps moves each price by a uniform offset within +/- JitterBps.
	JitterBps int64
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	switch {
	case c.DropRate < 0 || c.DropRate > 1:
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: dropRate must be between 0 and 1")
	case c.DuplicateRate < 0 || c.DuplicateRate > 1:
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: duplicateRate must be between 0 and 1")
	case c.ReorderWindow < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: reorderWindow must be >= 0")
	case c.JitterBps < 0 || c.JitterBps >= 10_000:
		return errors.Wrap(exception.ErrInvalidConfig, "chaos: jitterBps must be in [0, 10000)")
	}
	return nil
}

// Engine applies the configured rules tick by tick.
type Engine struct {
	cfg     Config
	rng     *rand.Rand
	pending []schema.Tick
}

// NewEngine validates cfg. A zero seed is replaced by the current time.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReorderWindow == 0 {
		cfg.ReorderWindow = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	return &Engine{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Process returns the ticks to emit for one input tick. With a reorder
// window the output lags the input until the window fills.
func (e *Engine) Process(tick schema.Tick) []schema.Tick {
	if e.cfg.DropRate > 0 && e.rng.Float64() < e.cfg.DropRate {
		return nil
	}
	tick = e.jitter(tick)
	if e.cfg.ReorderWindow <= 1 {
		return e.duplicate(tick)
	}
	e.pending = append(e.pending, tick)
	if len(e.pending) < e.cfg.ReorderWindow {
		return nil
	}
	return e.duplicate(e.pop())
}

// Flush drains ticks held back by the reorder window.
func (e *Engine) Flush() []schema.Tick {
	var out []schema.Tick
	for len(e.pending) > 0 {
		out = append(out, e.duplicate(e.pop())...)
	}
	return out
}

// Apply runs every tick through the engine and flushes.
func (e *Engine) Apply(ticks []schema.Tick) []schema.Tick {
	out := make([]schema.Tick, 0, len(ticks))
	for _, t := range ticks {
		out = append(out, e.Process(t)...)
	}
	return append(out, e.Flush()...)
}

func (e *Engine) pop() schema.Tick {
	idx := e.rng.IntN(len(e.pending))
	t := e.pending[idx]
	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	return t
}

func (e *Engine) duplicate(t schema.Tick) []schema.Tick {
	if e.cfg.DuplicateRate > 0 && e.rng.Float64() < e.cfg.DuplicateRate {
		return []schema.Tick{t, t}
	}
	return []schema.Tick{t}
}

var tenThousand = decimal.NewFromInt(10_000)

func (e *Engine) jitter(t schema.Tick) schema.Tick {
	if e.cfg.JitterBps == 0 {
		return t
	}
	bps := e.rng.Int64N(2*e.cfg.JitterBps+1) - e.cfg.JitterBps
	t.Price = t.Price.Add(t.Price.Mul(decimal.NewFromInt(bps)).Div(tenThousand))
	return t
}
