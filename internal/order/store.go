// Package order owns every order and execution record of a run.
//
// Store is safe for concurrent use. Each mutating call holds the internal
// lock only while it reads and writes state; observers are notified after
// the lock is released, in registration order, on the goroutine that made
// the call. Observers may therefore call back into the Store, but two
// concurrent mutators can interleave their notifications.
//
// UpdateStatus follows schema.OrderStatus.CanTransitionTo. RecordExecution
// is the one other way an order changes status: it fills any PENDING or OPEN
// order, so PENDING -> FILLED is reachable only through an execution.
package order

import (
	"sync"
	"time"

	"github.com/tidwall/btree"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"backtester/internal/obs"
	"backtester/internal/schema"
	"backtester/pkg/exception"
)

// Observer receives a copy of an order after it changed.
type Observer func(schema.Order)

// ExecutionObserver receives a copy of a newly recorded execution.
type ExecutionObserver func(schema.Execution)

// IDGenerator produces unique identifiers. Implementations must be safe for
// concurrent use.
type IDGenerator interface {
	Next() uint64
}

// Option configures a Store.
type Option func(*Store)

// WithOrderIDs replaces the order id generator.
func WithOrderIDs(gen IDGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.orderIDs = gen
		}
	}
}

// WithExecutionIDs replaces the execution id generator.
func WithExecutionIDs(gen IDGenerator) Option {
	return func(s *Store) {
		if gen != nil {
			s.executionIDs = gen
		}
	}
}

// WithMetrics attaches run metrics.
func WithMetrics(m *obs.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock replaces the clock used to stamp orders submitted without CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the authoritative registry of orders and executions.
type Store struct {
	mu         sync.Mutex
	orders     *btree.Map[schema.OrderID, schema.Order]
	executions []schema.Execution

	orderObservers     []Observer
	executionObservers []ExecutionObserver

	orderIDs     IDGenerator
	executionIDs IDGenerator
	metrics      *obs.Metrics
	now          func() time.Time
}

// NewStore creates an empty store with its own id sequences.
func NewStore(opts ...Option) *Store {
	s := &Store{
		orders:       btree.NewMap[schema.OrderID, schema.Order](32),
		orderIDs:     obs.NewSequence(0),
		executionIDs: obs.NewSequence(0),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnOrder registers an order observer.
func (s *Store) OnOrder(fn Observer) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.orderObservers = append(s.orderObservers, fn)
	s.mu.Unlock()
}

// OnExecution registers an execution observer.
func (s *Store) OnExecution(fn ExecutionObserver) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.executionObservers = append(s.executionObservers, fn)
	s.mu.Unlock()
}

// Submit inserts or replaces the order keyed by its id, assigning an id when
// the order has none.
func (s *Store) Submit(o schema.Order) (schema.OrderID, error) {
	if err := validate(o); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if o.ID == 0 {
		o.ID = schema.OrderID(s.orderIDs.Next())
	}
	if o.Status == 0 {
		o.Status = schema.OrderStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = s.now()
	}
	s.orders.Set(o.ID, o)
	observers := s.orderObservers
	s.mu.Unlock()

	s.notifyOrder(observers, o)
	return o.ID, nil
}

// Get returns a copy of the order, or false when the id is unknown.
func (s *Store) Get(id schema.OrderID) (schema.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.Get(id)
}

// UpdateStatus moves an order to status. It fails without side effects when
// the order is unknown or the transition is not allowed.
func (s *Store) UpdateStatus(id schema.OrderID, status schema.OrderStatus) error {
	s.mu.Lock()
	o, ok := s.orders.Get(id)
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(exception.ErrOrderNotFound, "update status of %s", id)
	}
	if !o.Status.CanTransitionTo(status) {
		s.mu.Unlock()
		return errors.Wrapf(exception.ErrInvalidTransition, "%s: %s -> %s", id, o.Status, status)
	}
	o.Status = status
	s.orders.Set(id, o)
	observers := s.orderObservers
	s.mu.Unlock()

	s.notifyOrder(observers, o)
	return nil
}

// RecordExecution appends exec to the history and marks its parent order
// FILLED. Every execution fully fills its order. Instrument, Side, Quantity
// and ExecutionID are taken from the parent or generated when left empty.
func (s *Store) RecordExecution(exec schema.Execution) (schema.Execution, error) {
	s.mu.Lock()
	o, ok := s.orders.Get(exec.OrderID)
	if !ok {
		s.mu.Unlock()
		return schema.Execution{}, errors.Wrapf(exception.ErrOrderNotFound, "record execution for %s", exec.OrderID)
	}
	if !o.Status.IsActive() {
		s.mu.Unlock()
		return schema.Execution{}, errors.Wrapf(exception.ErrInvalidTransition, "%s: %s -> %s", o.ID, o.Status, schema.OrderStatusFilled)
	}
	if exec.ExecutionID == 0 {
		exec.ExecutionID = schema.ExecutionID(s.executionIDs.Next())
	}
	if exec.Instrument == "" {
		exec.Instrument = o.Instrument
	}
	if !exec.Side.IsAvailable() {
		exec.Side = o.Side
	}
	if exec.Quantity.IsZero() {
		exec.Quantity = o.Quantity
	}
	s.executions = append(s.executions, exec)
	o.Status = schema.OrderStatusFilled
	s.orders.Set(o.ID, o)
	orderObservers := s.orderObservers
	executionObservers := s.executionObservers
	s.mu.Unlock()

	s.notifyOrder(orderObservers, o)
	s.notifyExecution(executionObservers, exec)
	return exec, nil
}

// Snapshot returns a point-in-time copy of every known order.
func (s *Store) Snapshot() map[schema.OrderID]schema.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[schema.OrderID]schema.Order, s.orders.Len())
	s.orders.Scan(func(id schema.OrderID, o schema.Order) bool {
		out[id] = o
		return true
	})
	return out
}

// Orders returns copies of the orders in id order. When statuses are given
// only orders in one of them are returned.
func (s *Store) Orders(statuses ...schema.OrderStatus) []schema.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Order, 0, s.orders.Len())
	s.orders.Scan(func(_ schema.OrderID, o schema.Order) bool {
		if matchStatus(o.Status, statuses) {
			out = append(out, o)
		}
		return true
	})
	return out
}

// Executions returns a copy of the execution history in record order.
func (s *Store) Executions() []schema.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Execution, len(s.executions))
	copy(out, s.executions)
	return out
}

// Len returns the number of orders held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders.Len()
}

func (s *Store) notifyOrder(observers []Observer, o schema.Order) {
	s.metrics.ObserveOrder(o.Status)
	for _, fn := range observers {
		s.safely(func() { fn(o) })
	}
}

func (s *Store) notifyExecution(observers []ExecutionObserver, exec schema.Execution) {
	for _, fn := range observers {
		s.safely(func() { fn(exec) })
	}
}

// safely isolates a failing observer from the mutating call and from the
// observers registered after it.
func (s *Store) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.IncObserverPanic()
			logs.Errorf("order observer panicked, err: %+v", r)
		}
	}()
	fn()
}

func matchStatus(status schema.OrderStatus, statuses []schema.OrderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func validate(o schema.Order) error {
	if !o.Side.IsAvailable() {
		return errors.Wrapf(exception.ErrOrderInvalid, "side %d", o.Side)
	}
	if !o.Type.IsAvailable() {
		return errors.Wrapf(exception.ErrOrderInvalid, "type %d", o.Type)
	}
	if !o.Quantity.IsPositive() {
		return errors.Wrapf(exception.ErrOrderInvalid, "quantity %s", o.Quantity)
	}
	if o.Type.NeedsPrice() && !o.Price.IsPositive() {
		return errors.Wrapf(exception.ErrOrderInvalid, "%s order price %s", o.Type, o.Price)
	}
	if o.Status != 0 && !o.Status.IsAvailable() {
		return errors.Wrapf(exception.ErrOrderInvalid, "status %d", o.Status)
	}
	return nil
}
