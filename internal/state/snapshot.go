package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"backtester/internal/schema"
)

// Snapshot captures positions at the end of a run.
type Snapshot struct {
	RunID     string            `json:"runId"`
	Timestamp int64             `json:"timestamp"`
	LastTick  int64             `json:"lastTick"`
	Positions []schema.Position `json:"positions"`
}

// Snapshot builds a snapshot from current positions.
func (b *Book) Snapshot(runID string, lastTick time.Time) Snapshot {
	var last int64
	if !lastTick.IsZero() {
		last = lastTick.UnixMilli()
	}
	return Snapshot{
		RunID:     runID,
		Timestamp: time.Now().UTC().UnixNano(),
		LastTick:  last,
		Positions: b.Positions(),
	}
}

// WriteSnapshot writes a snapshot to disk as indented JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create snapshot dir")
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "unmarshal snapshot")
	}
	return snap, nil
}

// CompareSnapshots checks that two snapshots hold the same positions.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return errors.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	want := make(map[string]schema.Position, len(expected.Positions))
	for _, p := range expected.Positions {
		want[p.Instrument] = p
	}
	for _, p := range actual.Positions {
		w, ok := want[p.Instrument]
		if !ok {
			return errors.Errorf("snapshot missing instrument: %s", p.Instrument)
		}
		if !w.Quantity.Equal(p.Quantity) || !w.RealizedPnL.Equal(p.RealizedPnL) {
			return errors.Errorf("snapshot mismatch: instrument=%s expected qty=%s pnl=%s actual qty=%s pnl=%s",
				p.Instrument, w.Quantity, w.RealizedPnL, p.Quantity, p.RealizedPnL)
		}
	}
	return nil
}
