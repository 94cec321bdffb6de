package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/yanun0323/errors"

	"backtester/internal/schema"
)

// Record layout: 48 byte header, payload, 4 byte CRC32-C over header+payload.
const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 48
	recordChecksumSize        = 4
	maxPayloadLen             = uint64(^uint32(0))
)

var (
	recordMagic = [4]byte{'B', 'T', 'J', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic         = errors.New("journal: invalid magic")
	ErrUnsupportedRecordVer = errors.New("journal: unsupported record version")
	ErrInvalidHeaderSize    = errors.New("journal: invalid header size")
	ErrChecksumMismatch     = errors.New("journal: checksum mismatch")
	ErrPayloadTooLarge      = errors.New("journal: payload too large")
)

func encodeHeader(dst []byte, h schema.EventHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(h.Type))
	binary.LittleEndian.PutUint16(dst[8:10], h.Version)
	binary.LittleEndian.PutUint16(dst[10:12], h.Source)
	binary.LittleEndian.PutUint16(dst[12:14], h.Flags)
	binary.LittleEndian.PutUint16(dst[14:16], 0)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint32(dst[20:24], 0)
	binary.LittleEndian.PutUint64(dst[24:32], h.Seq)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(h.TsEvent))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(h.TsRecv))
}

func decodeHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.EventHeader{}, 0, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(src[4:6]); v != recordVersion {
		return schema.EventHeader{}, 0, errors.Wrapf(ErrUnsupportedRecordVer, "version %d", v)
	}
	h := schema.EventHeader{
		Type:    schema.EventType(binary.LittleEndian.Uint16(src[6:8])),
		Version: binary.LittleEndian.Uint16(src[8:10]),
		Source:  binary.LittleEndian.Uint16(src[10:12]),
		Flags:   binary.LittleEndian.Uint16(src[12:14]),
		Seq:     binary.LittleEndian.Uint64(src[24:32]),
		TsEvent: int64(binary.LittleEndian.Uint64(src[32:40])),
		TsRecv:  int64(binary.LittleEndian.Uint64(src[40:48])),
	}
	return h, binary.LittleEndian.Uint32(src[16:20]), nil
}

func checksum(header, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}
