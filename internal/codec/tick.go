package codec

import (
	"encoding/binary"
	"time"

	"backtester/internal/schema"
)

// TickPayloadSize is the encoded size of a tick.
const TickPayloadSize = 8 + 2*decimalSize

// EncodeTick serializes a tick, reusing dst when it has capacity.
func EncodeTick(dst []byte, tick schema.Tick) ([]byte, error) {
	dst = dst[:0]
	dst = binary.LittleEndian.AppendUint64(dst, uint64(tick.Timestamp.UnixNano()))
	dst, err := appendDecimal(dst, tick.Price)
	if err != nil {
		return nil, err
	}
	return appendDecimal(dst, tick.Volume)
}

// DecodeTick parses a tick payload.
func DecodeTick(src []byte) (schema.Tick, error) {
	c := cursor{src: src}
	tick := schema.Tick{
		Timestamp: time.Unix(0, c.int64()).UTC(),
		Price:     c.decimal(),
		Volume:    c.decimal(),
	}
	if c.err != nil {
		return schema.Tick{}, c.err
	}
	return tick, nil
}
