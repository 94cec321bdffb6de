// Package feed loads historical ticks and hands them out in order.
package feed

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"backtester/internal/codec"
	"backtester/internal/recorder"
	"backtester/internal/schema"
	"backtester/pkg/exception"
)

// Feed is a forward-only cursor over loaded ticks.
type Feed struct {
	source string
	ticks  []schema.Tick
	next   int
}

// New wraps already loaded ticks.
func New(source string, ticks []schema.Tick) *Feed {
	return &Feed{source: source, ticks: ticks}
}

// Next returns the next tick, or false once the feed is exhausted.
func (f *Feed) Next() (schema.Tick, bool) {
	if f.next >= len(f.ticks) {
		return schema.Tick{}, false
	}
	tick := f.ticks[f.next]
	f.next++
	return tick, true
}

// Len returns the number of loaded ticks.
func (f *Feed) Len() int { return len(f.ticks) }

// Remaining returns the number of ticks not yet handed out.
func (f *Feed) Remaining() int { return len(f.ticks) - f.next }

// Source describes where the ticks came from.
func (f *Feed) Source() string { return f.source }

// Rewind restarts the cursor from the first tick.
func (f *Feed) Rewind() { f.next = 0 }

// Open loads a journal when path is a directory and a CSV file otherwise.
func Open(ctx context.Context, path, journalPrefix string) (*Feed, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open feed %s", path)
	}
	if info.IsDir() {
		return LoadJournal(ctx, path, journalPrefix)
	}
	return LoadCSV(path)
}

// LoadCSV reads `timestamp_ms,price,volume` lines. Empty lines and lines
// starting with '#' are ignored; malformed lines are logged and skipped.
// Values whose digits do not fit an int64 coefficient count as malformed.
func LoadCSV(path string) (*Feed, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open data file %s", path)
	}
	defer file.Close()

	ticks, err := ParseCSV(path, file)
	if err != nil {
		return nil, err
	}
	logs.Infof("Loaded %d ticks from %s", len(ticks), path)
	return New(path, ticks), nil
}

// ParseCSV parses tick lines from r. name is only used in log lines.
func ParseCSV(name string, r io.Reader) ([]schema.Tick, error) {
	var (
		ticks   []schema.Tick
		scanner = bufio.NewScanner(r)
		line    int
	)
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" || text[0] == '#' {
			continue
		}
		tick, err := parseLine(text)
		if err != nil {
			logs.Warnf("Skipping line %d in %s: %v", line, name, err)
			continue
		}
		ticks = append(ticks, tick)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	if len(ticks) == 0 {
		return nil, errors.Wrapf(exception.ErrFeedEmpty, "source %s", name)
	}
	return ticks, nil
}

func parseLine(text string) (schema.Tick, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 3 {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "expected 3 fields, got %d", len(parts))
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "timestamp %q", parts[0])
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "price %q", parts[1])
	}
	volume, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "volume %q", parts[2])
	}
	if !price.IsPositive() {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "price %s must be > 0", price)
	}
	if volume.IsNegative() {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "volume %s must be >= 0", volume)
	}
	if codec.CheckDecimal(price) != nil || codec.CheckDecimal(volume) != nil {
		return schema.Tick{}, errors.Wrapf(exception.ErrFeedMalformed, "price %s or volume %s exceeds journal precision", price, volume)
	}

	return schema.Tick{
		Timestamp: time.UnixMilli(ms).UTC(),
		Price:     price,
		Volume:    volume,
	}, nil
}

// LoadJournal reads the tick records of a recorded run journal. A prefix
// that matches several runs fails with recorder.ErrMultipleRuns; pass the
// run-qualified prefix (for example "backtest-1a2b3c4d") to pick one.
func LoadJournal(ctx context.Context, dir, prefix string) (*Feed, error) {
	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:        dir,
		FilePrefix: prefix,
		Types:      []schema.EventType{schema.EventTick},
		SingleRun:  true,
	})
	if err != nil {
		return nil, err
	}

	var ticks []schema.Tick
	err = pb.Run(ctx, func(h schema.EventHeader, payload []byte) error {
		tick, err := codec.DecodeTick(payload)
		if err != nil {
			return errors.Wrapf(err, "decode tick seq %d", h.Seq)
		}
		ticks = append(ticks, tick)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, errors.Wrapf(exception.ErrFeedEmpty, "journal %s", dir)
	}
	logs.Infof("Loaded %d ticks from journal %s", len(ticks), dir)
	return New(dir, ticks), nil
}
