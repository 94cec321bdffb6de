package recorder

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"backtester/internal/schema"
	"backtester/pkg/exception"
)

// ErrMultipleRuns reports a prefix that matches segments of several runs.
var ErrMultipleRuns = errors.New("journal: prefix matches more than one run")

// Handler receives each replayed record. The payload must not be retained.
type Handler func(header schema.EventHeader, payload []byte) error

// PlaybackConfig controls journal playback.
type PlaybackConfig struct {
	Dir            string
	FilePrefix     string
	Speed          float64
	Types          []schema.EventType
	SkipChecksum   bool
	MaxPayloadSize int
	// SingleRun fails playback when the matched segments belong to more
	// than one writer run.
	SingleRun bool
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrInvalidConfig, "playback: Dir is empty")
	case c.Speed < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "playback: Speed must be >= 0")
	case c.MaxPayloadSize < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "playback: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Sleeper paces playback. Tests swap it for a recording fake.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays journal segments in file name order.
type Playback struct {
	cfg   PlaybackConfig
	sleep Sleeper
	types map[schema.EventType]struct{}
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Playback{cfg: cfg, sleep: sleep}
	if len(cfg.Types) > 0 {
		p.types = make(map[schema.EventType]struct{}, len(cfg.Types))
		for _, t := range cfg.Types {
			p.types[t] = struct{}{}
		}
	}
	return p, nil
}

// WithSleeper swaps the pacing function.
func (p *Playback) WithSleeper(s Sleeper) *Playback {
	if s != nil {
		p.sleep = s
	}
	return p
}

// Segments lists the journal files playback would read.
func (p *Playback) Segments() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read journal dir %s", p.cfg.Dir)
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Runs lists the distinct runs among the matched segments, sorted.
func (p *Playback) Runs() ([]string, error) {
	files, err := p.Segments()
	if err != nil {
		return nil, err
	}
	return segmentRuns(files), nil
}

// RunPrefix is the file prefix of one writer run.
func RunPrefix(prefix, runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return prefix + "-" + runID
}

// segmentRun strips the `-YYYYMMDD-HHMMSS-NNNNNN.btj` tail added by the
// writer, leaving the prefix the writer was configured with.
func segmentRun(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), segmentExt)
	for i := 0; i < 3; i++ {
		idx := strings.LastIndexByte(name, '-')
		if idx < 0 {
			return name
		}
		name = name[:idx]
	}
	return name
}

func segmentRuns(files []string) []string {
	seen := make(map[string]struct{}, 1)
	var runs []string
	for _, f := range files {
		run := segmentRun(f)
		if _, ok := seen[run]; ok {
			continue
		}
		seen[run] = struct{}{}
		runs = append(runs, run)
	}
	sort.Strings(runs)
	return runs
}

// Run replays every record and calls handler for those passing the type
// filter. The first handler error stops playback.
func (p *Playback) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.Wrap(exception.ErrNilInstance, "playback handler")
	}
	files, err := p.Segments()
	if err != nil {
		return err
	}
	if p.cfg.SingleRun {
		if runs := segmentRuns(files); len(runs) > 1 {
			return errors.Wrapf(ErrMultipleRuns, "%s: %s", p.cfg.Dir, strings.Join(runs, ", "))
		}
	}

	var prev int64
	for _, path := range files {
		if err := p.playFile(ctx, path, handler, &prev); err != nil {
			return err
		}
	}
	return nil
}

func (p *Playback) playFile(ctx context.Context, path string, handler Handler, prev *int64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		SkipChecksum:   p.cfg.SkipChecksum,
		MaxPayloadSize: p.cfg.MaxPayloadSize,
	})
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, payload, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", filepath.Base(path))
		}
		if p.types != nil {
			if _, ok := p.types[header.Type]; !ok {
				continue
			}
		}
		if err := p.pace(ctx, header.TsEvent, prev); err != nil {
			return err
		}
		if err := handler(header, payload); err != nil {
			return err
		}
	}
}

func (p *Playback) pace(ctx context.Context, current int64, prev *int64) error {
	if p.cfg.Speed <= 0 || current <= 0 {
		return nil
	}
	if *prev > 0 && current > *prev {
		if err := p.sleep(ctx, time.Duration(float64(current-*prev)/p.cfg.Speed)); err != nil {
			return err
		}
	}
	*prev = current
	return nil
}
