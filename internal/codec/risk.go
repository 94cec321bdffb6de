package codec

import (
	"encoding/binary"

	"backtester/internal/schema"
)

// RiskDecisionPayloadSize is the encoded size of a risk decision.
const RiskDecisionPayloadSize = 12

// EncodeRiskDecision serializes a risk decision into a fixed-size payload.
func EncodeRiskDecision(dst []byte, d schema.RiskDecision) []byte {
	if cap(dst) < RiskDecisionPayloadSize {
		dst = make([]byte, RiskDecisionPayloadSize)
	} else {
		dst = dst[:RiskDecisionPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(d.OrderID))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(d.Action))
	binary.LittleEndian.PutUint16(dst[10:12], uint16(d.Reason))
	return dst
}

// DecodeRiskDecision parses a fixed-size risk decision payload.
func DecodeRiskDecision(src []byte) (schema.RiskDecision, error) {
	if len(src) < RiskDecisionPayloadSize {
		return schema.RiskDecision{}, ErrShortPayload
	}
	return schema.RiskDecision{
		OrderID: schema.OrderID(binary.LittleEndian.Uint64(src[0:8])),
		Action:  schema.RiskAction(binary.LittleEndian.Uint16(src[8:10])),
		Reason:  schema.RiskReason(binary.LittleEndian.Uint16(src[10:12])),
	}, nil
}
