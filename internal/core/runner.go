package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"backtester/internal/matcher"
	"backtester/internal/obs"
	"backtester/internal/order"
	"backtester/internal/risk"
	"backtester/internal/schema"
	"backtester/internal/state"
	"backtester/internal/strategy"
	"backtester/pkg/exception"
)

const tickTimeLayout = "2006-01-02 15:04:05.000"

// Source yields ticks in replay order.
type Source interface {
	Next() (schema.Tick, bool)
}

// Journal receives every event of the run. Implementations must be safe
// for use from store observers.
type Journal interface {
	Tick(ctx context.Context, tick schema.Tick) error
	Order(ctx context.Context, o schema.Order) error
	Execution(ctx context.Context, e schema.Execution) error
	RiskDecision(ctx context.Context, d schema.RiskDecision, ts time.Time) error
}

// Config controls a run.
type Config struct {
	RunID      string
	Instrument string
	Slippage   decimal.Decimal
	// LogEvery logs every Nth tick; 0 logs only ticks that produced a signal.
	LogEvery int
	Risk     risk.Config
}

// Result summarizes a finished run.
type Result struct {
	RunID      string
	Ticks      int
	Signals    int
	Orders     int
	Executions int
	Rejected   int
	LastTick   schema.Tick
	Positions  []schema.Position
}

// Runner wires the store, matcher, strategy, risk engine and position book
// around one tick source.
type Runner struct {
	cfg      Config
	source   Source
	strategy strategy.Strategy
	store    *order.Store
	matcher  *matcher.Matcher
	risk     *risk.Engine
	book     *state.Book
	journal  Journal
	metrics  *obs.Metrics

	ran        atomic.Bool
	journalErr atomic.Pointer[error]
}

// Option customizes a Runner.
type Option func(*Runner)

// WithJournal records the run to j.
func WithJournal(j Journal) Option {
	return func(r *Runner) { r.journal = j }
}

// WithMetrics attaches run metrics to every component.
func WithMetrics(m *obs.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner builds a runner with a fresh order store.
func NewRunner(cfg Config, source Source, strat strategy.Strategy, opts ...Option) (*Runner, error) {
	if source == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "tick source")
	}
	if strat == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "strategy")
	}
	if cfg.LogEvery < 0 {
		return nil, errors.Wrapf(exception.ErrInvalidArgument, "log every must be >= 0, got %d", cfg.LogEvery)
	}

	r := &Runner{
		cfg:      cfg,
		source:   source,
		strategy: strat,
		risk:     risk.NewEngine(cfg.Risk),
		book:     state.NewBook(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.store = order.NewStore(order.WithMetrics(r.metrics))
	r.matcher = matcher.New(r.store, r.metrics)
	r.matcher.SetSlippageDecimal(cfg.Slippage)
	return r, nil
}

// Store exposes the order store for inspection after a run.
func (r *Runner) Store() *order.Store { return r.store }

// Book exposes the position book.
func (r *Runner) Book() *state.Book { return r.book }

// Run replays the source until it is exhausted or ctx is done. On
// cancellation the partial result is returned with ctx.Err(). A Runner can
// only run once.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if !r.ran.CompareAndSwap(false, true) {
		return Result{}, errors.Wrap(exception.ErrInvalidArgument, "runner already ran")
	}

	res := Result{RunID: r.cfg.RunID}
	r.strategy.Initialize()
	r.subscribe(ctx, &res)
	logs.Infof("Starting simulation loop, run: %s, strategy: %s", r.cfg.RunID, r.strategy.Name())

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			logs.Warnf("Simulation interrupted after %d ticks", res.Ticks)
			runErr = err
			break
		}
		tick, ok := r.source.Next()
		if !ok {
			break
		}
		r.step(ctx, tick, &res)
	}

	res.Positions = r.book.Positions()
	logs.Infof("Simulation loop finished, total ticks processed: %d", res.Ticks)
	if runErr == nil {
		if p := r.journalErr.Load(); p != nil {
			runErr = errors.Wrap(*p, "journal")
		}
	}
	return res, runErr
}

func (r *Runner) subscribe(ctx context.Context, res *Result) {
	r.store.OnExecution(func(exec schema.Execution) {
		res.Executions++
		r.book.ApplyExecution(exec)
		r.strategy.OnExecution(exec)
	})
	if r.journal == nil {
		return
	}
	r.store.OnOrder(func(o schema.Order) {
		r.record(r.journal.Order(ctx, o))
	})
	r.store.OnExecution(func(exec schema.Execution) {
		r.record(r.journal.Execution(ctx, exec))
	})
}

func (r *Runner) step(ctx context.Context, tick schema.Tick, res *Result) {
	res.Ticks++
	res.LastTick = tick
	r.metrics.IncTick()
	if r.journal != nil {
		r.record(r.journal.Tick(ctx, tick))
	}

	if _, err := r.matcher.ProcessTick(tick); err != nil {
		logs.Errorf("Tick %d: matching failed, err: %+v", res.Ticks, err)
	}
	r.book.MarkAll(tick.Price)

	decision := r.strategy.OnTick(tick)
	if decision.Signal {
		res.Signals++
		r.metrics.IncSignal()
	}
	if decision.Signal || (r.cfg.LogEvery > 0 && res.Ticks%r.cfg.LogEvery == 0) {
		logs.Infof("Tick %d: Time=%s, Price=%s, Volume=%s",
			res.Ticks, tick.Timestamp.UTC().Format(tickTimeLayout), tick.Price, tick.Volume)
	}

	for _, proposal := range decision.Orders {
		r.place(ctx, tick, proposal, res)
	}
}

// place walks a proposal through PENDING, risk and OPEN or REJECTED.
func (r *Runner) place(ctx context.Context, tick schema.Tick, proposal schema.Order, res *Result) {
	if proposal.Instrument == "" {
		proposal.Instrument = r.cfg.Instrument
	}
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = tick.Timestamp
	}
	proposal.Status = schema.OrderStatusPending

	id, err := r.store.Submit(proposal)
	if err != nil {
		logs.Errorf("Submit order failed, instrument: %s, err: %+v", proposal.Instrument, err)
		return
	}
	res.Orders++
	proposal.ID = id

	decision := r.risk.Evaluate(proposal, risk.StateView{
		Position:       r.book.Position(proposal.Instrument).Quantity,
		ReferencePrice: tick.Price,
		Now:            tick.Timestamp,
	})
	if r.journal != nil {
		r.record(r.journal.RiskDecision(ctx, decision, tick.Timestamp))
	}

	next := schema.OrderStatusOpen
	if decision.Action != schema.RiskActionAllow {
		next = schema.OrderStatusRejected
		res.Rejected++
		r.metrics.IncRiskReject(decision.Reason)
		logs.Warnf("Order %s rejected by risk, reason: %s", id, decision.Reason)
	}
	if err := r.store.UpdateStatus(id, next); err != nil {
		logs.Errorf("Update order %s to %s failed, err: %+v", id, next, err)
	}
}

func (r *Runner) record(err error) {
	if err == nil {
		return
	}
	if r.journalErr.CompareAndSwap(nil, &err) {
		logs.Errorf("Journal append failed, further failures are suppressed, err: %+v", err)
	}
}

