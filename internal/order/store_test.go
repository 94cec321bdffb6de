package order

import (
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtester/internal/obs"
	"backtester/internal/schema"
	"backtester/pkg/exception"
)

func limitBuy(price, qty string) schema.Order {
	return schema.Order{
		Instrument: "BTCUSD",
		Type:       schema.OrderTypeLimit,
		Side:       schema.OrderSideBuy,
		Quantity:   decimal.RequireFromString(qty),
		Price:      decimal.RequireFromString(price),
	}
}

func TestSubmitAssignsIDsAndDefaults(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return at }))

	id1, err := s.Submit(limitBuy("100", "1"))
	require.NoError(t, err)
	id2, err := s.Submit(limitBuy("101", "2"))
	require.NoError(t, err)

	assert.Equal(t, schema.OrderID(1), id1)
	assert.Equal(t, schema.OrderID(2), id2)
	assert.Equal(t, "order_1", id1.String())

	got, ok := s.Get(id1)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatusPending, got.Status)
	assert.Equal(t, at, got.CreatedAt)
	assert.Equal(t, "100", got.Price.String())
}

func TestSubmitReplacesExistingID(t *testing.T) {
	s := NewStore()
	id, err := s.Submit(limitBuy("100", "1"))
	require.NoError(t, err)

	replacement := limitBuy("90", "3")
	replacement.ID = id
	_, err = s.Submit(replacement)
	require.NoError(t, err)

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "90", got.Price.String())
	assert.Equal(t, 1, s.Len())
}

func TestSubmitRejectsMalformed(t *testing.T) {
	testCases := []struct {
		desc  string
		order schema.Order
	}{
		{"no side", schema.Order{Type: schema.OrderTypeMarket, Quantity: decimal.NewFromInt(1)}},
		{"no type", schema.Order{Side: schema.OrderSideBuy, Quantity: decimal.NewFromInt(1)}},
		{"zero quantity", schema.Order{Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket}},
		{"limit without price", schema.Order{Side: schema.OrderSideBuy, Type: schema.OrderTypeLimit, Quantity: decimal.NewFromInt(1)}},
		{"bad status", schema.Order{Side: schema.OrderSideBuy, Type: schema.OrderTypeMarket, Quantity: decimal.NewFromInt(1), Status: 42}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			s := NewStore()
			notified := 0
			s.OnOrder(func(schema.Order) { notified++ })

			_, err := s.Submit(tc.order)
			require.ErrorIs(t, err, exception.ErrOrderInvalid)
			assert.Zero(t, s.Len())
			assert.Zero(t, notified)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	s := NewStore()
	_, ok := s.Get(99)
	assert.False(t, ok)
}

func TestRoundTripAfterUpdates(t *testing.T) {
	s := NewStore()
	id, err := s.Submit(limitBuy("100", "1"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(id, schema.OrderStatusOpen))

	got, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, schema.OrderStatusOpen, got.Status)
	assert.Equal(t, "BTCUSD", got.Instrument)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	s := NewStore()
	notified := 0
	s.OnOrder(func(schema.Order) { notified++ })

	err := s.UpdateStatus(7, schema.OrderStatusOpen)
	require.ErrorIs(t, err, exception.ErrOrderNotFound)
	assert.Zero(t, notified)
	assert.Zero(t, s.Len())
}

func TestUpdateStatusTransitions(t *testing.T) {
	testCases := []struct {
		desc  string
		path  []schema.OrderStatus
		next  schema.OrderStatus
		legal bool
	}{
		{"pending to open", nil, schema.OrderStatusOpen, true},
		{"pending to rejected", nil, schema.OrderStatusRejected, true},
		{"pending to canceled", nil, schema.OrderStatusCanceled, true},
		{"pending to filled", nil, schema.OrderStatusFilled, false},
		{"open to filled", []schema.OrderStatus{schema.OrderStatusOpen}, schema.OrderStatusFilled, true},
		{"open to canceled", []schema.OrderStatus{schema.OrderStatusOpen}, schema.OrderStatusCanceled, true},
		{"open to pending", []schema.OrderStatus{schema.OrderStatusOpen}, schema.OrderStatusPending, false},
		{"open to rejected", []schema.OrderStatus{schema.OrderStatusOpen}, schema.OrderStatusRejected, false},
		{"filled to pending", []schema.OrderStatus{schema.OrderStatusOpen, schema.OrderStatusFilled}, schema.OrderStatusPending, false},
		{"rejected to open", []schema.OrderStatus{schema.OrderStatusRejected}, schema.OrderStatusOpen, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			s := NewStore()
			id, err := s.Submit(limitBuy("100", "1"))
			require.NoError(t, err)
			for _, status := range tc.path {
				require.NoError(t, s.UpdateStatus(id, status))
			}
			before, _ := s.Get(id)

			err = s.UpdateStatus(id, tc.next)
			after, _ := s.Get(id)
			if tc.legal {
				require.NoError(t, err)
				assert.Equal(t, tc.next, after.Status)
				return
			}
			require.ErrorIs(t, err, exception.ErrInvalidTransition)
			assert.Equal(t, before, after)
		})
	}
}

func TestRecordExecutionUnknownOrder(t *testing.T) {
	s := NewStore()
	orderNotified, execNotified := 0, 0
	s.OnOrder(func(schema.Order) { orderNotified++ })
	s.OnExecution(func(schema.Execution) { execNotified++ })

	_, err := s.RecordExecution(schema.Execution{OrderID: 3, Price: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, exception.ErrOrderNotFound)
	assert.Empty(t, s.Executions())
	assert.Zero(t, orderNotified)
	assert.Zero(t, execNotified)
}

func TestRecordExecutionFillsOrder(t *testing.T) {
	s := NewStore()
	id, err := s.Submit(limitBuy("100", "2"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(id, schema.OrderStatusOpen))

	var events []string
	s.OnOrder(func(o schema.Order) { events = append(events, "order:"+o.Status.String()) })
	s.OnExecution(func(e schema.Execution) { events = append(events, "exec:"+e.ExecutionID.String()) })

	exec, err := s.RecordExecution(schema.Execution{
		OrderID:   id,
		Price:     decimal.NewFromInt(99),
		Timestamp: time.Unix(1, 0),
	})
	require.NoError(t, err)

	got, _ := s.Get(id)
	assert.Equal(t, schema.OrderStatusFilled, got.Status)

	history := s.Executions()
	require.Len(t, history, 1)
	assert.Equal(t, id, history[0].OrderID)
	assert.Equal(t, exec, history[0])
	assert.Equal(t, "2", exec.Quantity.String())
	assert.Equal(t, "BTCUSD", exec.Instrument)
	assert.Equal(t, schema.OrderSideBuy, exec.Side)
	assert.Equal(t, []string{"order:FILLED", "exec:exec_1"}, events)
}

func TestRecordExecutionFillsPendingOrder(t *testing.T) {
	s := NewStore()
	id, err := s.Submit(limitBuy("100", "1"))
	require.NoError(t, err)

	err = s.UpdateStatus(id, schema.OrderStatusFilled)
	require.ErrorIs(t, err, exception.ErrInvalidTransition)
	got, _ := s.Get(id)
	assert.Equal(t, schema.OrderStatusPending, got.Status)

	_, err = s.RecordExecution(schema.Execution{OrderID: id, Price: decimal.NewFromInt(100)})
	require.NoError(t, err)
	got, _ = s.Get(id)
	assert.Equal(t, schema.OrderStatusFilled, got.Status)
}

func TestRecordExecutionOnFilledOrderFails(t *testing.T) {
	s := NewStore()
	id, err := s.Submit(limitBuy("100", "1"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(id, schema.OrderStatusOpen))
	_, err = s.RecordExecution(schema.Execution{OrderID: id, Price: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = s.RecordExecution(schema.Execution{OrderID: id, Price: decimal.NewFromInt(100)})
	require.ErrorIs(t, err, exception.ErrInvalidTransition)
	assert.Len(t, s.Executions(), 1)
}

func TestObserversRunInRegistrationOrder(t *testing.T) {
	s := NewStore()
	var calls []int
	for i := 0; i < 3; i++ {
		i := i
		s.OnOrder(func(schema.Order) { calls = append(calls, i) })
	}
	_, err := s.Submit(limitBuy("1", "1"))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
}

func TestObserverMayReenterStore(t *testing.T) {
	s := NewStore()
	var seen schema.Order
	s.OnOrder(func(o schema.Order) {
		seen, _ = s.Get(o.ID)
		if o.Status == schema.OrderStatusPending {
			_ = s.UpdateStatus(o.ID, schema.OrderStatusOpen)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Submit(limitBuy("1", "1"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer re-entry deadlocked")
	}
	assert.Equal(t, schema.OrderStatusOpen, seen.Status)
}

func TestObserverPanicIsIsolated(t *testing.T) {
	m := obs.NewMetrics()
	s := NewStore(WithMetrics(m))
	reached := false
	s.OnOrder(func(schema.Order) { panic("boom") })
	s.OnOrder(func(schema.Order) { reached = true })

	id, err := s.Submit(limitBuy("1", "1"))
	require.NoError(t, err)
	assert.True(t, reached)
	_, ok := s.Get(id)
	assert.True(t, ok)

	summary, err := m.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1.0, summary["backtester_order_observer_panics_total"])
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	id, err := s.Submit(limitBuy("100", "1"))
	require.NoError(t, err)

	snap := s.Snapshot()
	o := snap[id]
	o.Status = schema.OrderStatusFilled
	snap[id] = o

	got, _ := s.Get(id)
	assert.Equal(t, schema.OrderStatusPending, got.Status)
}

func TestOrdersFilterAndOrder(t *testing.T) {
	s := NewStore()
	for i := 0; i < 4; i++ {
		_, err := s.Submit(limitBuy("100", "1"))
		require.NoError(t, err)
	}
	require.NoError(t, s.UpdateStatus(2, schema.OrderStatusOpen))
	require.NoError(t, s.UpdateStatus(4, schema.OrderStatusOpen))

	open := s.Orders(schema.OrderStatusOpen)
	require.Len(t, open, 2)
	assert.Equal(t, schema.OrderID(2), open[0].ID)
	assert.Equal(t, schema.OrderID(4), open[1].ID)
	assert.Len(t, s.Orders(), 4)
}

type fixedIDs struct{ next uint64 }

func (f *fixedIDs) Next() uint64 {
	f.next += 10
	return f.next
}

func TestInjectedIDGenerators(t *testing.T) {
	a := NewStore(WithOrderIDs(&fixedIDs{}))
	b := NewStore()

	idA, err := a.Submit(limitBuy("1", "1"))
	require.NoError(t, err)
	idB, err := b.Submit(limitBuy("1", "1"))
	require.NoError(t, err)

	assert.Equal(t, schema.OrderID(10), idA)
	assert.Equal(t, schema.OrderID(1), idB)
}

func TestConcurrentSubmit(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id, err := s.Submit(limitBuy("100", "1"))
				if err != nil {
					t.Error(err)
					return
				}
				_ = s.UpdateStatus(id, schema.OrderStatusOpen)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, s.Len())
	assert.Len(t, s.Orders(schema.OrderStatusOpen), 800)
}

func TestRender(t *testing.T) {
	o := limitBuy("100.5", "2")
	o.ID = 7
	raw, err := Render(o)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, sonic.Unmarshal(raw, &got))
	assert.Equal(t, "order_7", got["order_id"])
	assert.Equal(t, "BTCUSD", got["instrument"])
	assert.Equal(t, "buy", got["side"])
	assert.Equal(t, "limit", got["type"])
	assert.Equal(t, 100.5, got["price"])
	assert.Equal(t, 2.0, got["quantity"])
}
