// Package util provides the low-level byte-order and length-encoded
// integer/string helpers the MySQL wire protocol is built from. The
// read/write pairs in this package back the packet codec, the
// handshake parser, and the row decoders.
package util

// ReadBytes slices off offset bytes starting at cursor and returns the
// new cursor position alongside them. A non-positive offset is a no-op.
func ReadBytes(buff []byte, cursor int, offset int) (int, []byte) {
	if offset <= 0 {
		return cursor, nil
	}
	return cursor + offset, buff[cursor : cursor+offset]
}

func ReadByte(buff []byte, cursor int) (int, byte) {
	return cursor + 1, buff[cursor]
}

func ReadUB2(buff []byte, cursor int) (int, uint16) {
	i := uint16(buff[cursor])
	i |= uint16(buff[cursor+1]) << 8
	return cursor + 2, i
}

func ReadUB3(buff []byte, cursor int) (int, uint32) {
	i := uint32(buff[cursor])
	i |= uint32(buff[cursor+1]) << 8
	i |= uint32(buff[cursor+2]) << 16
	return cursor + 3, i
}

func ReadUB4(buff []byte, cursor int) (int, uint32) {
	i := uint32(buff[cursor])
	i |= uint32(buff[cursor+1]) << 8
	i |= uint32(buff[cursor+2]) << 16
	i |= uint32(buff[cursor+3]) << 24
	return cursor + 4, i
}

func ReadUB6(buff []byte, cursor int) (int, uint64) {
	i := uint64(buff[cursor])
	i |= uint64(buff[cursor+1]) << 8
	i |= uint64(buff[cursor+2]) << 16
	i |= uint64(buff[cursor+3]) << 24
	i |= uint64(buff[cursor+4]) << 32
	i |= uint64(buff[cursor+5]) << 40
	return cursor + 6, i
}

func ReadUB8(buff []byte, cursor int) (int, uint64) {
	i := uint64(buff[cursor])
	i |= uint64(buff[cursor+1]) << 8
	i |= uint64(buff[cursor+2]) << 16
	i |= uint64(buff[cursor+3]) << 24
	i |= uint64(buff[cursor+4]) << 32
	i |= uint64(buff[cursor+5]) << 40
	i |= uint64(buff[cursor+6]) << 48
	i |= uint64(buff[cursor+7]) << 56
	return cursor + 8, i
}

// ReadLength reads a length-encoded integer (LEI): a single byte below
// 0xfb is the value itself; 0xfb is NULL (returned as 0 — callers that
// care about NULL vs. zero must check the tag byte themselves before
// calling this); 0xfc/0xfd/0xfe prefix a 2/3/8-byte little-endian value.
func ReadLength(buff []byte, cursor int) (int, uint64) {
	first := buff[cursor]
	cursor++
	switch first {
	case 0xfb:
		return cursor, 0
	case 0xfc:
		cursor, u16 := ReadUB2(buff, cursor)
		return cursor, uint64(u16)
	case 0xfd:
		cursor, u24 := ReadUB3(buff, cursor)
		return cursor, uint64(u24)
	case 0xfe:
		cursor, u64 := ReadUB8(buff, cursor)
		return cursor, u64
	default:
		return cursor, uint64(first)
	}
}

// ReadString reads the remainder of buff as a string.
func ReadString(buff []byte, cursor int) (int, string) {
	cursor, tmp := ReadBytes(buff, cursor, len(buff)-cursor)
	return cursor, string(tmp)
}

func ReadStringWithNull(buff []byte, cursor int) (int, string) {
	cursor, tmp := ReadWithNull(buff, cursor)
	return cursor, string(tmp)
}

// ReadLengthString reads a length-encoded string: an LEI length prefix
// followed by that many raw bytes.
func ReadLengthString(buff []byte, cursor int) (int, string) {
	cursor, strLen := ReadLength(buff, cursor)
	cursor, tmp := ReadBytes(buff, cursor, int(strLen))
	return cursor, string(tmp)
}

// ReadWithNull reads bytes up to (excluding) the next 0x00 terminator
// and advances the cursor past it.
func ReadWithNull(buff []byte, cursor int) (int, []byte) {
	start := cursor
	for buff[cursor] != 0 {
		cursor++
	}
	ret := make([]byte, cursor-start)
	copy(ret, buff[start:cursor])
	return cursor + 1, ret
}

// GetLength returns the number of bytes a length-encoded integer of
// this value occupies.
func GetLength(length int64) int {
	switch {
	case length < 251:
		return 1
	case length < 0x10000:
		return 3
	case length < 0x1000000:
		return 4
	default:
		return 9
	}
}

// GetLengthBytes returns the wire size of buff encoded as a
// length-encoded string (LEI length prefix + payload).
func GetLengthBytes(buff []byte) int {
	return GetLength(int64(len(buff))) + len(buff)
}
