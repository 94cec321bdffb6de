package state

import (
	"context"

	"github.com/yanun0323/errors"

	"backtester/internal/codec"
	"backtester/internal/recorder"
	"backtester/internal/schema"
)

// RebuildResult carries positions replayed from a journal.
type RebuildResult struct {
	Book       *Book
	Executions int
	LastSeq    uint64
}

// Rebuild replays execution and tick records from a run journal into a
// fresh book. Ticks only revalue open positions. The prefix must select a
// single run.
func Rebuild(ctx context.Context, cfg recorder.PlaybackConfig) (RebuildResult, error) {
	cfg.Speed = 0
	cfg.SingleRun = true
	cfg.Types = []schema.EventType{schema.EventTick, schema.EventExecution}
	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		return RebuildResult{}, err
	}

	res := RebuildResult{Book: NewBook()}
	err = pb.Run(ctx, func(h schema.EventHeader, payload []byte) error {
		res.LastSeq = h.Seq
		switch h.Type {
		case schema.EventExecution:
			exec, err := codec.DecodeExecution(payload)
			if err != nil {
				return errors.Wrapf(err, "decode execution seq %d", h.Seq)
			}
			res.Book.ApplyExecution(exec)
			res.Executions++
		case schema.EventTick:
			tick, err := codec.DecodeTick(payload)
			if err != nil {
				return errors.Wrapf(err, "decode tick seq %d", h.Seq)
			}
			res.Book.MarkAll(tick.Price)
		}
		return nil
	})
	if err != nil {
		return RebuildResult{}, err
	}
	return res, nil
}
