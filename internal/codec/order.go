package codec

import (
	"encoding/binary"
	"time"

	"backtester/internal/schema"
)

// EncodeOrder serializes an order snapshot.
func EncodeOrder(dst []byte, o schema.Order) ([]byte, error) {
	dst = dst[:0]
	dst = binary.LittleEndian.AppendUint64(dst, uint64(o.ID))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(o.Type))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(o.Side))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(o.Status))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(o.CreatedAt.UnixNano()))

	var err error
	if dst, err = appendDecimal(dst, o.Quantity); err != nil {
		return nil, err
	}
	if dst, err = appendDecimal(dst, o.Price); err != nil {
		return nil, err
	}
	return appendString(dst, o.Instrument)
}

// DecodeOrder parses an order payload.
func DecodeOrder(src []byte) (schema.Order, error) {
	c := cursor{src: src}
	o := schema.Order{
		ID:     schema.OrderID(c.uint64()),
		Type:   schema.OrderType(c.uint16()),
		Side:   schema.OrderSide(c.uint16()),
		Status: schema.OrderStatus(c.uint16()),
	}
	o.CreatedAt = time.Unix(0, c.int64()).UTC()
	o.Quantity = c.decimal()
	o.Price = c.decimal()
	o.Instrument = c.string()
	if c.err != nil {
		return schema.Order{}, c.err
	}
	return o, nil
}
