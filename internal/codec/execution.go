package codec

import (
	"encoding/binary"
	"time"

	"backtester/internal/schema"
)

// EncodeExecution serializes a fill.
func EncodeExecution(dst []byte, e schema.Execution) ([]byte, error) {
	dst = dst[:0]
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.OrderID))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.ExecutionID))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(e.Side))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Timestamp.UnixNano()))

	var err error
	if dst, err = appendDecimal(dst, e.Price); err != nil {
		return nil, err
	}
	if dst, err = appendDecimal(dst, e.Quantity); err != nil {
		return nil, err
	}
	return appendString(dst, e.Instrument)
}

// DecodeExecution parses a fill payload.
func DecodeExecution(src []byte) (schema.Execution, error) {
	c := cursor{src: src}
	e := schema.Execution{
		OrderID:     schema.OrderID(c.uint64()),
		ExecutionID: schema.ExecutionID(c.uint64()),
		Side:        schema.OrderSide(c.uint16()),
	}
	e.Timestamp = time.Unix(0, c.int64()).UTC()
	e.Price = c.decimal()
	e.Quantity = c.decimal()
	e.Instrument = c.string()
	if c.err != nil {
		return schema.Execution{}, c.err
	}
	return e, nil
}
