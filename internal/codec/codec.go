// Package codec encodes journal payloads into compact little-endian records.
// Decimals are stored as an int64 coefficient followed by an int32 exponent.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const (
	decimalSize    = 12
	maxInstrument  = math.MaxUint16
	stringLenBytes = 2
)

var (
	ErrShortPayload     = errors.New("codec: payload too short")
	ErrDecimalOverflow  = errors.New("codec: decimal coefficient overflows int64")
	ErrInstrumentLength = errors.New("codec: instrument too long")
)

// CheckDecimal reports whether d fits the journal encoding.
func CheckDecimal(d decimal.Decimal) error {
	if !d.Coefficient().IsInt64() {
		return errors.Wrapf(ErrDecimalOverflow, "value %s", d.String())
	}
	return nil
}

func appendDecimal(dst []byte, d decimal.Decimal) ([]byte, error) {
	if err := CheckDecimal(d); err != nil {
		return dst, err
	}
	coef := d.Coefficient()
	dst = binary.LittleEndian.AppendUint64(dst, uint64(coef.Int64()))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(d.Exponent()))
	return dst, nil
}

func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > maxInstrument {
		return dst, ErrInstrumentLength
	}
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

// cursor reads fields sequentially and remembers the first short read.
type cursor struct {
	src []byte
	off int
	err error
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if len(c.src)-c.off < n {
		c.err = ErrShortPayload
		return nil
	}
	b := c.src[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) uint16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) uint64() uint64 {
	if b := c.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (c *cursor) int64() int64 {
	return int64(c.uint64())
}

func (c *cursor) decimal() decimal.Decimal {
	b := c.take(decimalSize)
	if b == nil {
		return decimal.Zero
	}
	coef := int64(binary.LittleEndian.Uint64(b[0:8]))
	exp := int32(binary.LittleEndian.Uint32(b[8:12]))
	return decimal.New(coef, exp)
}

func (c *cursor) string() string {
	n := int(c.uint16())
	if b := c.take(n); b != nil {
		return string(b)
	}
	return ""
}
