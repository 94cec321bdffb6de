// Package strategy defines the contract trading strategies implement and a
// registry to build them by name.
package strategy

import "backtester/internal/schema"

// Strategy reacts to ticks and executions during a replay.
//
// OnTick is called once per tick, in replay order, on the replay goroutine;
// it must not block. Orders proposed in the returned Decision are submitted
// by the caller, never by the strategy itself.
type Strategy interface {
	// Initialize resets all internal state. It is called once before replay.
	Initialize()
	OnTick(tick schema.Tick) Decision
	OnExecution(exec schema.Execution)
	Name() string
}

// Decision is what a strategy produced for one tick.
type Decision struct {
	// Signal reports that the strategy's trade rule fired on this tick.
	Signal bool
	// Orders are proposals for the replay loop to submit.
	Orders []schema.Order
}

// Base provides a no-op OnExecution for embedding.
type Base struct{}

func (Base) OnExecution(schema.Execution) {}
