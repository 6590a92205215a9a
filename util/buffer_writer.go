package util

func WriteByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

func WriteBytes(buf []byte, from []byte) []byte {
	return append(buf, from...)
}

func WriteUB2(buf []byte, i uint16) []byte {
	return append(buf, byte(i), byte(i>>8))
}

func WriteUB3(buf []byte, i uint32) []byte {
	return append(buf, byte(i), byte(i>>8), byte(i>>16))
}

func WriteUB4(buf []byte, i uint32) []byte {
	return append(buf, byte(i), byte(i>>8), byte(i>>16), byte(i>>24))
}

func WriteUB6(buf []byte, i uint64) []byte {
	return append(buf, byte(i), byte(i>>8), byte(i>>16), byte(i>>24), byte(i>>32), byte(i>>40))
}

func WriteUB8(buf []byte, i uint64) []byte {
	return append(buf, byte(i), byte(i>>8), byte(i>>16), byte(i>>24),
		byte(i>>32), byte(i>>40), byte(i>>48), byte(i>>56))
}

// WriteLength appends length as a length-encoded integer (LEI).
// Values below 251 are a single literal byte; 251 itself must NOT be
// written as a bare byte since 0xfb is the NULL sentinel, so the cutoff
// is strictly less-than, not <=.
func WriteLength(buf []byte, length int64) []byte {
	switch {
	case length < 251:
		return WriteByte(buf, byte(length))
	case length < 0x10000:
		buf = WriteByte(buf, 0xfc)
		return WriteUB2(buf, uint16(length))
	case length < 0x1000000:
		buf = WriteByte(buf, 0xfd)
		return WriteUB3(buf, uint32(length))
	default:
		buf = WriteByte(buf, 0xfe)
		return WriteUB8(buf, uint64(length))
	}
}

func WriteWithNull(buf []byte, from []byte) []byte {
	buf = WriteBytes(buf, from)
	return append(buf, 0)
}

// WriteWithLength appends from as a length-encoded string.
func WriteWithLength(buf []byte, from []byte) []byte {
	buf = WriteLength(buf, int64(len(from)))
	return WriteBytes(buf, from)
}

// WriteWithLengthOrNull appends from as a length-encoded string, or the
// NULL sentinel (0xfb) when from is nil.
func WriteWithLengthOrNull(buf []byte, from []byte) []byte {
	if from == nil {
		return WriteByte(buf, 0xfb)
	}
	return WriteWithLength(buf, from)
}

func ConvertUInt4Bytes(i uint32) []byte {
	return WriteUB4(nil, i)
}

func ConvertUInt2Bytes(i uint16) []byte {
	return WriteUB2(nil, i)
}
