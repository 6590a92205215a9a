package mysql

import (
	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// RowCodec decodes result-set rows into caller-facing values. Every
// Connection uses defaultRowCodec (in this file), which handles the Go
// types spec.md §8 exercises; Options has no field for supplying a
// different RowCodec.
type RowCodec interface {
	DecodeTextRow(raw []string, nulls []bool, columns []paramColumn) ([]interface{}, error)
	DecodeBinaryRow(payload []byte, columns []paramColumn) ([]interface{}, error)
}

type defaultRowCodec struct{}

func (defaultRowCodec) DecodeTextRow(raw []string, nulls []bool, columns []paramColumn) ([]interface{}, error) {
	out := make([]interface{}, len(raw))
	for i, s := range raw {
		if nulls[i] {
			out[i] = nil
			continue
		}
		out[i] = s
	}
	return out, nil
}

func (defaultRowCodec) DecodeBinaryRow(payload []byte, columns []paramColumn) ([]interface{}, error) {
	return decodeBinaryRow(payload, columns)
}

// ResultSet streams the rows of a single result in a (possibly
// multi-result) response (spec §4.6).
type ResultSet struct {
	conn    *Connection
	binary  bool
	columns []paramColumn

	lastOK      *okResult
	lastEOF     *eofResult
	hasResults  bool
	done        bool
}

// headerOutcome reports what readResultSetHeader found at step 1
// (spec §4.6): either a plain OK (no rows), a LOCAL INFILE request
// that has already been fully handled, or the start of a row stream.
type headerOutcome struct {
	ok       *okResult
	rows     *ResultSet
}

// readResultSetHeader implements spec §4.6 steps 1-4.
func readResultSetHeader(conn *Connection, binary bool) (*headerOutcome, error) {
	payload, err := conn.codec.readPacket()
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, protoErr(ErrUnexpectedPacket, "empty result-set header packet")
	}

	switch payload[0] {
	case tagOK:
		ok, err := parseOKPacket(payload)
		if err != nil {
			return nil, err
		}
		conn.lastOK = ok
		conn.statusFlags = ok.statusFlags
		conn.hasResults = false
		return &headerOutcome{ok: ok}, nil

	case tagErr:
		return nil, parseErrPacket(payload)

	case tagLocalInFile:
		filename := string(payload[1:])
		if err := handleLocalInfile(conn, filename); err != nil {
			return nil, err
		}
		final, err := conn.codec.readPacket()
		if err != nil {
			return nil, err
		}
		if len(final) > 0 && final[0] == tagErr {
			return nil, parseErrPacket(final)
		}
		ok, err := parseOKPacket(final)
		if err != nil {
			return nil, err
		}
		conn.lastOK = ok
		conn.statusFlags = ok.statusFlags
		conn.hasResults = false
		return &headerOutcome{ok: ok}, nil

	default:
		cursor := 0
		var count uint64
		cursor, count = util.ReadLength(payload, cursor)
		_ = cursor

		columns, err := readColumnDefsAndEOF(conn.codec, int(count))
		if err != nil {
			return nil, err
		}

		rs := &ResultSet{conn: conn, binary: binary, columns: columns, hasResults: count > 0}
		conn.hasResults = rs.hasResults
		return &headerOutcome{rows: rs}, nil
	}
}

// Columns returns the result set's column metadata names, in order.
func (rs *ResultSet) Columns() []string {
	names := make([]string, len(rs.columns))
	for i, c := range rs.columns {
		names[i] = c.name
	}
	return names
}

// Next reads and decodes one row, returning (nil, false, nil) at the
// terminator. It is not safe to call concurrently with any other
// operation on the owning Connection (spec §5).
func (rs *ResultSet) Next() ([]interface{}, bool, error) {
	if rs.done {
		return nil, false, nil
	}

	payload, err := rs.conn.codec.readPacket()
	if err != nil {
		return nil, false, err
	}

	if isEOFTerminator(payload) {
		eof, err := parseEOFPacket(payload)
		if err != nil {
			return nil, false, err
		}
		rs.lastEOF = eof
		rs.conn.statusFlags = eof.statusFlags
		rs.done = true
		rs.conn.hasResults = HasMoreResults(eof.statusFlags)
		return nil, false, nil
	}

	if rs.binary {
		values, err := rs.conn.rowCodec.DecodeBinaryRow(payload, rs.columns)
		if err != nil {
			return nil, false, err
		}
		return values, true, nil
	}

	raw, nulls, err := decodeTextRow(payload, len(rs.columns))
	if err != nil {
		return nil, false, err
	}
	values, err := rs.conn.rowCodec.DecodeTextRow(raw, nulls, rs.columns)
	if err != nil {
		return nil, false, err
	}
	return values, true, nil
}

// HasMore reports whether the terminator that ended this result set
// announced another pending result (spec §4.6 "Multi-result
// continuation").
func (rs *ResultSet) HasMore() bool {
	return rs.done && rs.lastEOF != nil && HasMoreResults(rs.lastEOF.statusFlags)
}

// NextResult restarts the reader for the next result set in a
// multi-statement / multi-result response. The codec takes over the
// sequence id of every frame it reads, so the counter already follows
// the server's continuation; the setSeq call below leaves it unchanged.
func (rs *ResultSet) NextResult() (*ResultSet, error) {
	if !rs.HasMore() {
		return nil, protoErr(ErrUnexpectedPacket, "no further result sets pending")
	}
	rs.conn.codec.setSeq(rs.conn.codec.currentSeq())
	outcome, err := readResultSetHeader(rs.conn, rs.binary)
	if err != nil {
		return nil, err
	}
	if outcome.rows == nil {
		return &ResultSet{conn: rs.conn, binary: rs.binary, done: true, lastOK: outcome.ok}, nil
	}
	return outcome.rows, nil
}

