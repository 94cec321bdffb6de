package recorder

import (
	"time"

	"github.com/yanun0323/errors"

	"backtester/pkg/exception"
)

const (
	defaultSegmentMaxBytes int64 = 256 << 20
	defaultQueueSize             = 4096
	defaultBufferSize            = 128 * 1024
	defaultFilePrefix            = "backtest"

	segmentExt = ".btj"
)

// Config controls journal writer behavior.
type Config struct {
	Dir                string
	FilePrefix         string
	SegmentMaxBytes    int64
	SegmentMaxDuration time.Duration
	QueueSize          int
	BufferSize         int
	FlushInterval      time.Duration
}

// DefaultConfig returns a baseline configuration for a journal in dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		FilePrefix:      defaultFilePrefix,
		SegmentMaxBytes: defaultSegmentMaxBytes,
		QueueSize:       defaultQueueSize,
		BufferSize:      defaultBufferSize,
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	switch {
	case c.Dir == "":
		return errors.Wrap(exception.ErrInvalidConfig, "journal: Dir is empty")
	case c.FilePrefix == "":
		return errors.Wrap(exception.ErrInvalidConfig, "journal: FilePrefix is empty")
	case c.SegmentMaxBytes <= 0:
		return errors.Wrap(exception.ErrInvalidConfig, "journal: SegmentMaxBytes must be > 0")
	case c.SegmentMaxDuration < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "journal: SegmentMaxDuration must be >= 0")
	case c.QueueSize <= 0:
		return errors.Wrap(exception.ErrInvalidConfig, "journal: QueueSize must be > 0")
	case c.BufferSize <= 0:
		return errors.Wrap(exception.ErrInvalidConfig, "journal: BufferSize must be > 0")
	case c.FlushInterval < 0:
		return errors.Wrap(exception.ErrInvalidConfig, "journal: FlushInterval must be >= 0")
	}
	return nil
}
