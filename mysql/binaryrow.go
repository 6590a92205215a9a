package mysql

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// decodeBinaryRow decodes one COM_STMT_EXECUTE response row (spec
// §4.6's "Binary rows"). Layout: a 1-byte packet header (always 0x00),
// a NULL-bitmap of (numCols+7+2)/8 bytes (integer division) with a 2-bit offset
// (bits 0-1 reserved), then each non-NULL column's value encoded
// per its type byte.
//
// Grounded on the binary protocol's documented NULL-bitmap offset of 2
// (recovered from original_source's connection reader, since the
// teacher's server-side protocol package only ever builds text-protocol
// responses and never decodes the binary row format a client receives).
func decodeBinaryRow(payload []byte, columns []paramColumn) (values []interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			values = nil
			err = protoErr(ErrUnexpectedPacket, "truncated binary row: %v", r)
		}
	}()
	return decodeBinaryRowUnsafe(payload, columns)
}

func decodeBinaryRowUnsafe(payload []byte, columns []paramColumn) ([]interface{}, error) {
	if len(payload) < 1 || payload[0] != 0x00 {
		return nil, protoErr(ErrUnexpectedPacket, "binary row packet missing 0x00 header byte")
	}
	cursor := 1

	bitmapLen := (len(columns) + 7 + 2) / 8
	if cursor+bitmapLen > len(payload) {
		return nil, protoErr(ErrUnexpectedPacket, "truncated binary row NULL-bitmap")
	}
	bitmap := payload[cursor : cursor+bitmapLen]
	cursor += bitmapLen

	values := make([]interface{}, len(columns))
	var err error
	for i, col := range columns {
		bytePos := (i + 2) / 8
		bitPos := uint((i + 2) % 8)
		if bitmap[bytePos]&(1<<bitPos) != 0 {
			values[i] = nil
			continue
		}
		cursor, values[i], err = decodeBinaryValue(payload, cursor, col)
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

func decodeBinaryValue(payload []byte, cursor int, col paramColumn) (int, interface{}, error) {
	unsigned := col.flags&flagUnsigned != 0

	switch col.columnType {
	case typeTiny:
		v := payload[cursor]
		cursor++
		if unsigned {
			return cursor, uint64(v), nil
		}
		return cursor, int64(int8(v)), nil

	case typeShort, typeYear:
		var u uint16
		cursor, u = util.ReadUB2(payload, cursor)
		if unsigned {
			return cursor, uint64(u), nil
		}
		return cursor, int64(int16(u)), nil

	case typeLong, typeInt24:
		var u uint32
		cursor, u = util.ReadUB4(payload, cursor)
		if unsigned {
			return cursor, uint64(u), nil
		}
		return cursor, int64(int32(u)), nil

	case typeLongLong:
		var u uint64
		cursor, u = util.ReadUB8(payload, cursor)
		if unsigned {
			return cursor, u, nil
		}
		return cursor, int64(u), nil

	case typeFloat:
		bits := binary.LittleEndian.Uint32(payload[cursor : cursor+4])
		cursor += 4
		return cursor, float64(math.Float32frombits(bits)), nil

	case typeDouble:
		bits := binary.LittleEndian.Uint64(payload[cursor : cursor+8])
		cursor += 8
		return cursor, math.Float64frombits(bits), nil

	case typeDate, typeDatetime, typeTimestamp:
		return decodeBinaryTemporal(payload, cursor)

	case typeTime:
		return decodeBinaryDuration(payload, cursor)

	case typeNewDecimal, typeDecimal, typeVarchar, typeVarString, typeString,
		typeBlob, typeTinyBlob, typeMediumBlob, typeLongBlob:
		var s string
		var next int
		next, s = util.ReadLengthString(payload, cursor)
		if col.flags&flagBinary != 0 {
			return next, []byte(s), nil
		}
		return next, s, nil

	case typeNull:
		return cursor, nil, nil

	default:
		var s string
		var next int
		next, s = util.ReadLengthString(payload, cursor)
		return next, s, nil
	}
}

// decodeBinaryTemporal decodes the variable-length DATE/DATETIME/
// TIMESTAMP encoding: a length byte (0, 4, 7, or 11) followed by that
// many fields.
func decodeBinaryTemporal(payload []byte, cursor int) (int, interface{}, error) {
	var length byte
	cursor, length = util.ReadByte(payload, cursor)
	if length == 0 {
		return cursor, time.Time{}, nil
	}

	var year uint16
	cursor, year = util.ReadUB2(payload, cursor)
	var month, day byte
	cursor, month = util.ReadByte(payload, cursor)
	cursor, day = util.ReadByte(payload, cursor)

	var hour, minute, second byte
	var micro uint32
	if length >= 7 {
		cursor, hour = util.ReadByte(payload, cursor)
		cursor, minute = util.ReadByte(payload, cursor)
		cursor, second = util.ReadByte(payload, cursor)
	}
	if length >= 11 {
		cursor, micro = util.ReadUB4(payload, cursor)
	}

	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), int(micro)*1000, time.UTC)
	return cursor, t, nil
}

// decodeBinaryDuration decodes the binary TIME encoding: length byte
// (0, 8, or 12), sign byte, 4-byte day count, hour/minute/second bytes,
// optional 4-byte microseconds.
func decodeBinaryDuration(payload []byte, cursor int) (int, interface{}, error) {
	var length byte
	cursor, length = util.ReadByte(payload, cursor)
	if length == 0 {
		return cursor, time.Duration(0), nil
	}

	var sign byte
	cursor, sign = util.ReadByte(payload, cursor)
	var days uint32
	cursor, days = util.ReadUB4(payload, cursor)
	var hour, minute, second byte
	cursor, hour = util.ReadByte(payload, cursor)
	cursor, minute = util.ReadByte(payload, cursor)
	cursor, second = util.ReadByte(payload, cursor)

	var micro uint32
	if length >= 12 {
		cursor, micro = util.ReadUB4(payload, cursor)
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second +
		time.Duration(micro)*time.Microsecond
	if sign != 0 {
		d = -d
	}
	return cursor, d, nil
}

// encodeBoundParam chooses a column type byte and wire encoding for a
// positional EXECUTE parameter. Supported Go types are int64, int,
// uint64, float64, string, []byte, time.Time, bool and nil; a value
// of any other type (int32, float32, ...) is sent as an empty string.
func encodeBoundParam(v interface{}) (byte, []byte) {
	switch val := v.(type) {
	case nil:
		return typeNull, nil
	case int64:
		return typeLongLong, util.WriteUB8(nil, uint64(val))
	case int:
		return typeLongLong, util.WriteUB8(nil, uint64(int64(val)))
	case uint64:
		return typeLongLong, util.WriteUB8(nil, val)
	case float64:
		bits := math.Float64bits(val)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, bits)
		return typeDouble, buf
	case string:
		return typeVarString, util.WriteWithLength(nil, []byte(val))
	case []byte:
		return typeVarString, util.WriteWithLength(nil, val)
	case time.Time:
		return typeDatetime, encodeBinaryTemporal(val)
	case bool:
		b := byte(0)
		if val {
			b = 1
		}
		return typeTiny, []byte{b}
	default:
		return typeVarString, util.WriteWithLength(nil, []byte{})
	}
}

func encodeBinaryTemporal(t time.Time) []byte {
	if t.IsZero() {
		return []byte{0}
	}
	micro := uint32(t.Nanosecond() / 1000)
	buf := make([]byte, 0, 12)
	buf = util.WriteByte(buf, 11)
	buf = util.WriteUB2(buf, uint16(t.Year()))
	buf = util.WriteByte(buf, byte(t.Month()))
	buf = util.WriteByte(buf, byte(t.Day()))
	buf = util.WriteByte(buf, byte(t.Hour()))
	buf = util.WriteByte(buf, byte(t.Minute()))
	buf = util.WriteByte(buf, byte(t.Second()))
	buf = util.WriteUB4(buf, micro)
	return buf
}
