package recorder

import (
	"context"
	"sync"
	"time"

	"backtester/internal/codec"
	"backtester/internal/obs"
	"backtester/internal/schema"
)

// SourceBacktest tags records produced by the replay loop.
const SourceBacktest uint16 = 1

// Journal encodes domain events and appends them to a Writer with a
// monotonically increasing sequence.
type Journal struct {
	w   *Writer
	seq *obs.Sequence

	mu  sync.Mutex
	buf []byte
}

// NewJournal wraps a started writer.
func NewJournal(w *Writer) *Journal {
	return &Journal{
		w:   w,
		seq: obs.NewSequence(0),
		buf: make([]byte, 0, 128),
	}
}

// Tick records a market data tick.
func (j *Journal) Tick(ctx context.Context, tick schema.Tick) error {
	return j.append(ctx, schema.EventTick, tick.Timestamp, func(dst []byte) ([]byte, error) {
		return codec.EncodeTick(dst, tick)
	})
}

// Order records an order state notification.
func (j *Journal) Order(ctx context.Context, o schema.Order) error {
	return j.append(ctx, schema.EventOrder, o.CreatedAt, func(dst []byte) ([]byte, error) {
		return codec.EncodeOrder(dst, o)
	})
}

// Execution records a fill.
func (j *Journal) Execution(ctx context.Context, e schema.Execution) error {
	return j.append(ctx, schema.EventExecution, e.Timestamp, func(dst []byte) ([]byte, error) {
		return codec.EncodeExecution(dst, e)
	})
}

// RiskDecision records a pre-trade risk verdict observed at ts.
func (j *Journal) RiskDecision(ctx context.Context, d schema.RiskDecision, ts time.Time) error {
	return j.append(ctx, schema.EventRiskDecision, ts, func(dst []byte) ([]byte, error) {
		return codec.EncodeRiskDecision(dst, d), nil
	})
}

// Close flushes and closes the underlying writer.
func (j *Journal) Close() error {
	return j.w.Close()
}

// Written returns the number of records persisted so far.
func (j *Journal) Written() uint64 {
	return j.w.Written()
}

func (j *Journal) append(ctx context.Context, typ schema.EventType, ts time.Time, encode func([]byte) ([]byte, error)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	payload, err := encode(j.buf)
	if err != nil {
		return err
	}
	j.buf = payload[:0]

	header := schema.NewHeader(typ, SourceBacktest, j.seq.Next(), ts.UnixNano(), time.Now().UnixNano())
	return j.w.Append(ctx, header, payload)
}
