package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"backtester/internal/schema"
)

var (
	ErrQueueFull      = errors.New("journal: queue full")
	ErrClosed         = errors.New("journal: writer closed")
	ErrNotStarted     = errors.New("journal: writer not started")
	ErrAlreadyStarted = errors.New("journal: writer already started")
)

// Writer appends records to rotating segment files. A single background
// goroutine drains a bounded queue; Close flushes and syncs the open segment.
type Writer struct {
	cfg Config
	ch  chan request
	wg  sync.WaitGroup
	err atomic.Pointer[error]

	started atomic.Bool
	closed  atomic.Bool
	written atomic.Uint64

	// guards send against close of ch
	sendMu sync.RWMutex
}

type request struct {
	header  schema.EventHeader
	payload []byte
}

type segment struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}

// NewWriter creates a writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}
	return &Writer{
		cfg: cfg,
		ch:  make(chan request, cfg.QueueSize),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting records, drains the queue and flushes to disk.
func (w *Writer) Close() error {
	if w.closed.CompareAndSwap(false, true) {
		w.sendMu.Lock()
		close(w.ch)
		w.sendMu.Unlock()
	}
	w.wg.Wait()
	return w.Err()
}

// Err returns the first error observed by the writer loop.
func (w *Writer) Err() error {
	if p := w.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Written returns the number of records handed to the segment buffer.
func (w *Writer) Written() uint64 {
	return w.written.Load()
}

// TryAppend enqueues a record without blocking. The payload is copied.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	req, err := w.prepare(header, payload)
	if err != nil {
		return err
	}

	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed.Load() {
		return ErrClosed
	}
	select {
	case w.ch <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Append enqueues a record, waiting for queue space until ctx is done.
func (w *Writer) Append(ctx context.Context, header schema.EventHeader, payload []byte) error {
	req, err := w.prepare(header, payload)
	if err != nil {
		return err
	}

	w.sendMu.RLock()
	defer w.sendMu.RUnlock()
	if w.closed.Load() {
		return ErrClosed
	}
	select {
	case w.ch <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) prepare(header schema.EventHeader, payload []byte) (request, error) {
	if !w.started.Load() {
		return request{}, ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return request{}, err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return request{}, ErrPayloadTooLarge
	}
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return request{header: header, payload: cp}, nil
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg    *segment
		segID  uint64
		header = make([]byte, recordHeaderSize)
		flushC <-chan time.Time
	)
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		flushC = ticker.C
	}
	defer func() {
		if err := closeSegment(seg); err != nil {
			w.setErr(err)
		}
	}()

	write := func(req request) bool {
		if err := w.write(&seg, &segID, header, req); err != nil {
			w.setErr(err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case req, ok := <-w.ch:
					if !ok || !write(req) {
						return
					}
				default:
					return
				}
			}
		case req, ok := <-w.ch:
			if !ok || !write(req) {
				return
			}
		case <-flushC:
			if seg != nil {
				if err := seg.buf.Flush(); err != nil {
					w.setErr(err)
					return
				}
			}
		}
	}
}

func (w *Writer) write(seg **segment, segID *uint64, header []byte, req request) error {
	now := time.Now().UTC()
	size := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if w.shouldRotate(*seg, now, size) {
		if err := closeSegment(*seg); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	encodeHeader(header, req.header, len(req.payload))
	var sum [recordChecksumSize]byte
	binary.LittleEndian.PutUint32(sum[:], checksum(header, req.payload))

	buf := (*seg).buf
	if _, err := buf.Write(header); err != nil {
		return err
	}
	if _, err := buf.Write(req.payload); err != nil {
		return err
	}
	if _, err := buf.Write(sum[:]); err != nil {
		return err
	}
	(*seg).size += size
	w.written.Add(1)
	return nil
}

func (w *Writer) shouldRotate(seg *segment, now time.Time, next int64) bool {
	switch {
	case seg == nil:
		return true
	case seg.size > 0 && seg.size+next > w.cfg.SegmentMaxBytes:
		return true
	case w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration:
		return true
	}
	return false
}

func (w *Writer) openSegment(segID *uint64, now time.Time) (*segment, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID++
		name := fmt.Sprintf("%s-%s-%06d%s", w.cfg.FilePrefix, ts, *segID, segmentExt)
		file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return nil, err
		}
		return &segment{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func closeSegment(seg *segment) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		_ = seg.file.Close()
		return err
	}
	if err := seg.file.Sync(); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *Writer) setErr(err error) {
	if err != nil {
		w.err.CompareAndSwap(nil, &err)
	}
}
