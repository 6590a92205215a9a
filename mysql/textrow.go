package mysql

import (
	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// decodeTextRow decodes one COM_QUERY response row (spec §4.6 "Text
// rows"): length-encoded strings back to back, with the NULL sentinel
// byte 0xfb in place of a length prefix for a NULL column.
func decodeTextRow(payload []byte, numCols int) (values []string, nulls []bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			values, nulls = nil, nil
			err = protoErr(ErrUnexpectedPacket, "truncated text row: %v", r)
		}
	}()

	values = make([]string, numCols)
	nulls = make([]bool, numCols)
	cursor := 0
	for i := 0; i < numCols; i++ {
		if payload[cursor] == tagNull {
			cursor++
			nulls[i] = true
			continue
		}
		cursor, values[i] = util.ReadLengthString(payload, cursor)
	}
	return values, nulls, nil
}
