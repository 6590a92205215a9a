package mysql

import (
	"strings"
	"sync/atomic"

	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// paramColumn mirrors the handful of column-definition fields the
// execute-parameter encoder and binary row decoder need.
type paramColumn struct {
	name       string
	columnType byte
	flags      uint16
}

// Statement is a prepared statement handle, shared across callers that
// prepare the same rewritten query text while the cache holds it open
// (spec §4.5's Design Note on reference counting).
type Statement struct {
	connID uint32

	rewrittenQuery string
	namedParams    []string // nil if the query used no named parameters

	id         uint32
	numParams  int
	numColumns int
	params     []paramColumn
	columns    []paramColumn

	refCount int32
}

func (s *Statement) retain() { atomic.AddInt32(&s.refCount, 1) }

// release decrements the refcount and reports whether it reached zero,
// meaning the caller may now issue COM_STMT_CLOSE.
func (s *Statement) release() bool {
	return atomic.AddInt32(&s.refCount, -1) == 0
}

// rewriteNamedParams parses `:name` placeholders into positional `?`
// markers, returning the rewritten query and one name per placeholder
// in the order they occur, a repeated name appearing once per
// occurrence (nil if the query used no named params at all), per
// spec §4.5 step 1.
func rewriteNamedParams(query string) (string, []string) {
	if !strings.Contains(query, ":") {
		return query, nil
	}

	var out strings.Builder
	var names []string
	runes := []rune(query)
	inQuote := rune(0)

	for i := 0; i < len(runes); i++ {
		c := runes[i]

		if inQuote != 0 {
			out.WriteRune(c)
			if c == inQuote && (i == 0 || runes[i-1] != '\\') {
				inQuote = 0
			}
			continue
		}
		if c == '\'' || c == '"' || c == '`' {
			inQuote = c
			out.WriteRune(c)
			continue
		}
		if c == ':' && i+1 < len(runes) && isIdentStart(runes[i+1]) {
			j := i + 1
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			names = append(names, string(runes[i+1:j]))
			out.WriteByte('?')
			i = j - 1
			continue
		}
		out.WriteRune(c)
	}

	if names == nil {
		return query, nil
	}
	return out.String(), names
}

func isIdentStart(c rune) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// resolvePositionalArgs maps a caller-supplied named-argument map onto
// the statement's ordered parameter-name list, failing per spec §4.5
// step 1's two named-parameter error cases.
func resolvePositionalArgs(stmt *Statement, named map[string]interface{}) ([]interface{}, error) {
	if stmt.namedParams == nil {
		return nil, protoErr(ErrNamedParamsForPositionalQuery, "statement %q has no named parameters", stmt.rewrittenQuery)
	}
	args := make([]interface{}, len(stmt.namedParams))
	for i, name := range stmt.namedParams {
		v, ok := named[name]
		if !ok {
			return nil, protoErr(ErrMissingNamedParameter, "missing value for named parameter %q", name)
		}
		args[i] = v
	}
	return args, nil
}

// prepareStatement runs spec §4.5 steps 2-3 against a cache miss: sends
// COM_STMT_PREPARE, reads the prepare-ok, then the parameter and column
// definition packets (each list terminated by an EOF when the protocol
// still sends one).
func prepareStatement(codec *packetCodec, connID uint32, rewritten string, names []string) (*Statement, error) {
	if err := writeComStmtPrepare(codec, rewritten); err != nil {
		return nil, err
	}

	header, err := codec.readPacket()
	if err != nil {
		return nil, err
	}
	if len(header) > 0 && header[0] == tagErr {
		return nil, parseErrPacket(header)
	}

	cursor := 1
	var stmtID uint32
	cursor, stmtID = util.ReadUB4(header, cursor)
	var numColumns, numParams uint16
	cursor, numColumns = util.ReadUB2(header, cursor)
	cursor, numParams = util.ReadUB2(header, cursor)

	stmt := &Statement{
		connID:         connID,
		rewrittenQuery: rewritten,
		namedParams:    names,
		id:             stmtID,
		numParams:      int(numParams),
		numColumns:     int(numColumns),
		refCount:       1,
	}

	if numParams > 0 {
		cols, err := readColumnDefsAndEOF(codec, int(numParams))
		if err != nil {
			return nil, err
		}
		stmt.params = cols
	}
	if numColumns > 0 {
		cols, err := readColumnDefsAndEOF(codec, int(numColumns))
		if err != nil {
			return nil, err
		}
		stmt.columns = cols
	}

	return stmt, nil
}

func readColumnDefsAndEOF(codec *packetCodec, count int) ([]paramColumn, error) {
	cols := make([]paramColumn, 0, count)
	for i := 0; i < count; i++ {
		payload, err := codec.readPacket()
		if err != nil {
			return nil, err
		}
		cols = append(cols, decodeColumnDefinition(payload))
	}
	// Trailing EOF packet (absent under CLIENT_DEPRECATE_EOF, which
	// this client never requests, so it is always present here).
	if _, err := codec.readPacket(); err != nil {
		return nil, err
	}
	return cols, nil
}

// decodeColumnDefinition reads the fields of a Column Definition 41
// packet that the param/row decoders actually need: name, type, flags.
func decodeColumnDefinition(payload []byte) paramColumn {
	cursor := 0
	var s string
	cursor, s = util.ReadLengthString(payload, cursor) // catalog
	_ = s
	cursor, s = util.ReadLengthString(payload, cursor) // schema
	cursor, s = util.ReadLengthString(payload, cursor) // table
	cursor, s = util.ReadLengthString(payload, cursor) // org_table
	var name string
	cursor, name = util.ReadLengthString(payload, cursor) // name
	cursor, s = util.ReadLengthString(payload, cursor)    // org_name
	_ = s

	cursor, _ = util.ReadLength(payload, cursor) // length of fixed-length fields, always 0x0c
	cursor += 2                                  // character set
	cursor += 4                                  // column length
	var colType byte
	cursor, colType = util.ReadByte(payload, cursor)
	var flags uint16
	_, flags = util.ReadUB2(payload, cursor)

	return paramColumn{name: name, columnType: colType, flags: flags}
}

// writeComStmtExecute encodes and sends a COM_STMT_EXECUTE packet for
// stmt with the given positional args (spec §4.4, §4.6 "Long data").
// Every []byte argument is sent ahead of EXECUTE via
// COM_STMT_SEND_LONG_DATA, chunked to maxPayloadLen-6, whatever its
// size; all other arguments are inlined, and a body that then exceeds
// maxAllowedPacket is rejected with an error, not split out.
func writeComStmtExecute(codec *packetCodec, stmt *Statement, args []interface{}, maxAllowedPacket uint32) error {
	longDataIdx := map[int][]byte{}
	for i, a := range args {
		b, ok := a.([]byte)
		if !ok {
			continue
		}
		// Every []byte parameter is routed through
		// COM_STMT_SEND_LONG_DATA rather than inlined in EXECUTE:
		// the packed body size isn't known until every parameter is
		// encoded, so byte slices — the only unbounded type — always
		// go out-of-band. A zero-length slice still needs its own
		// frame (spec §4.6) so the server doesn't see a stale value
		// from a previous execute of the same statement handle.
		longDataIdx[i] = b
	}
	for i, chunk := range longDataIdx {
		if err := sendLongData(codec, stmt.id, uint16(i), chunk); err != nil {
			return err
		}
	}

	codec.resetSeq()
	buf := util.WriteByte(nil, comStmtExecute)
	buf = util.WriteUB4(buf, stmt.id)
	buf = util.WriteByte(buf, 0) // cursor type: CURSOR_TYPE_NO_CURSOR
	buf = util.WriteUB4(buf, 1) // iteration count, always 1

	if len(args) > 0 {
		nullBitmap := make([]byte, (len(args)+7)/8)
		for i, a := range args {
			if a == nil {
				nullBitmap[i/8] |= 1 << uint(i%8)
			}
		}
		buf = util.WriteBytes(buf, nullBitmap)
		buf = util.WriteByte(buf, 1) // new-params-bound-flag

		typeBuf := make([]byte, 0, len(args)*2)
		var valueBuf []byte
		for i, a := range args {
			if _, isLong := longDataIdx[i]; isLong {
				typeBuf = util.WriteUB2(typeBuf, uint16(typeVarString))
				continue
			}
			t, v := encodeBoundParam(a)
			typeBuf = util.WriteUB2(typeBuf, uint16(t))
			valueBuf = append(valueBuf, v...)
		}
		buf = util.WriteBytes(buf, typeBuf)
		buf = util.WriteBytes(buf, valueBuf)
	}

	if maxAllowedPacket > 0 && uint32(len(buf)) > maxAllowedPacket {
		return protoErr(ErrSetupError, "EXECUTE body of %d bytes exceeds max_allowed_packet (%d)", len(buf), maxAllowedPacket)
	}
	return codec.writePacket(buf)
}

func sendLongData(codec *packetCodec, stmtID uint32, idx uint16, data []byte) error {
	const chunkSize = maxPayloadLen - 6
	if len(data) == 0 {
		return writeComStmtSendLongData(codec, stmtID, idx, nil)
	}
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := writeComStmtSendLongData(codec, stmtID, idx, data[off:end]); err != nil {
			return err
		}
	}
	return nil
}
