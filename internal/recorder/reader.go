package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/yanun0323/errors"

	"backtester/internal/schema"
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	SkipChecksum   bool
	MaxPayloadSize int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r       *bufio.Reader
	opts    ReaderOptions
	header  []byte
	payload []byte
}

// NewReader wraps r with journal decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:      bufio.NewReader(r),
		opts:   opts,
		header: make([]byte, recordHeaderSize),
	}
}

// Next returns the next record. The payload is only valid until the next
// call. A clean end of stream returns io.EOF; a torn record returns
// io.ErrUnexpectedEOF.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	n, err := io.ReadFull(r.r, r.header)
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.EventHeader{}, nil, io.EOF
		}
		return schema.EventHeader{}, nil, io.ErrUnexpectedEOF
	}

	header, size, err := decodeHeader(r.header)
	if err != nil {
		return header, nil, err
	}
	if uint64(size) > maxPayloadLen || (r.opts.MaxPayloadSize > 0 && int(size) > r.opts.MaxPayloadSize) {
		return header, nil, errors.Wrapf(ErrPayloadTooLarge, "seq %d size %d", header.Seq, size)
	}

	if cap(r.payload) < int(size) {
		r.payload = make([]byte, size)
	}
	r.payload = r.payload[:size]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return header, nil, io.ErrUnexpectedEOF
	}

	var sum [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, sum[:]); err != nil {
		return header, nil, io.ErrUnexpectedEOF
	}
	if !r.opts.SkipChecksum && binary.LittleEndian.Uint32(sum[:]) != checksum(r.header, r.payload) {
		return header, nil, errors.Wrapf(ErrChecksumMismatch, "seq %d", header.Seq)
	}
	return header, r.payload, nil
}
