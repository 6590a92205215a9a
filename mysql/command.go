package mysql

import (
	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// okResult is the parsed form of an OK packet (spec §4.6 step 2).
// parseOKPacket is given the whole payload, leading 0x00 tag byte
// included, and checks and skips that byte itself.
type okResult struct {
	affectedRows uint64
	lastInsertID uint64
	statusFlags  uint16
	warnings     uint16
	info         string
}

// parseOKPacket decodes an OK packet, grounded on the shape of
// server/protocol/ok.go's DecodeOk, generalized with the status-flags
// and warning-count fields that side never needed to read back.
func parseOKPacket(payload []byte) (*okResult, error) {
	if len(payload) == 0 || payload[0] != tagOK {
		return nil, protoErr(ErrUnexpectedPacket, "expected OK packet, tag byte 0x%02x", firstByte(payload))
	}
	cursor := 1
	var affected, insertID uint64
	cursor, affected = util.ReadLength(payload, cursor)
	cursor, insertID = util.ReadLength(payload, cursor)

	var status, warnings uint16
	cursor, status = util.ReadUB2(payload, cursor)
	cursor, warnings = util.ReadUB2(payload, cursor)

	info := ""
	if cursor < len(payload) {
		_, info = util.ReadString(payload, cursor)
	}

	return &okResult{
		affectedRows: affected,
		lastInsertID: insertID,
		statusFlags:  status,
		warnings:     warnings,
		info:         info,
	}, nil
}

// eofResult is the parsed form of a result-set terminator EOF packet.
type eofResult struct {
	warnings    uint16
	statusFlags uint16
}

// parseEOFPacket decodes the 5-byte EOF packet body (tag, 2-byte
// warning count, 2-byte status flags), grounded on
// server/protocol/eof.go's WriteEOF in reverse.
func parseEOFPacket(payload []byte) (*eofResult, error) {
	if len(payload) < 5 || payload[0] != tagEOF {
		return nil, protoErr(ErrUnexpectedPacket, "expected EOF packet, tag byte 0x%02x", firstByte(payload))
	}
	cursor := 1
	var warnings, status uint16
	cursor, warnings = util.ReadUB2(payload, cursor)
	_, status = util.ReadUB2(payload, cursor)
	return &eofResult{warnings: warnings, statusFlags: status}, nil
}

// parseErrPacket decodes a server ERR packet into a *ServerError,
// grounded on server/protocol/error.go's EncodeErrorPacket in reverse.
func parseErrPacket(payload []byte) error {
	if len(payload) == 0 || payload[0] != tagErr {
		return protoErr(ErrUnexpectedPacket, "expected ERR packet, tag byte 0x%02x", firstByte(payload))
	}
	cursor := 1
	var code uint16
	cursor, code = util.ReadUB2(payload, cursor)

	sqlState := ""
	if cursor < len(payload) && payload[cursor] == '#' {
		cursor++
		var stateBytes []byte
		cursor, stateBytes = util.ReadBytes(payload, cursor, 5)
		sqlState = string(stateBytes)
	}
	_, msg := util.ReadString(payload, cursor)

	return &ServerError{Code: code, SQLState: sqlState, Message: msg}
}

func firstByte(payload []byte) byte {
	if len(payload) == 0 {
		return 0
	}
	return payload[0]
}

// isEOFTerminator reports whether payload is the result-set EOF
// terminator rather than a row whose first byte happens to be 0xfe: an
// EOF terminator is short (5 bytes: tag + warnings + status), so any
// 0xfe-tagged payload of fewer than 0xfe bytes in total is taken as
// the terminator (spec §4.6).
func isEOFTerminator(payload []byte) bool {
	return len(payload) > 0 && payload[0] == tagEOF && len(payload) < 0xfe
}

// writeComQuery writes a COM_QUERY command (spec §4.4); resets the
// sequence id per spec §4.2.
func writeComQuery(codec *packetCodec, query string) error {
	codec.resetSeq()
	buf := make([]byte, 0, len(query)+1)
	buf = util.WriteByte(buf, comQuery)
	buf = util.WriteBytes(buf, []byte(query))
	return codec.writePacket(buf)
}

func writeComPing(codec *packetCodec) error {
	codec.resetSeq()
	return codec.writePacket([]byte{comPing})
}

func writeComInitDB(codec *packetCodec, schema string) error {
	codec.resetSeq()
	buf := util.WriteByte(nil, comInitDB)
	buf = util.WriteBytes(buf, []byte(schema))
	return codec.writePacket(buf)
}

func writeComQuit(codec *packetCodec) error {
	codec.resetSeq()
	return codec.writePacket([]byte{comQuit})
}

func writeComResetConnection(codec *packetCodec) error {
	codec.resetSeq()
	return codec.writePacket([]byte{comResetConnection})
}

func writeComStmtClose(codec *packetCodec, stmtID uint32) error {
	codec.resetSeq()
	buf := util.WriteByte(nil, comStmtClose)
	buf = util.WriteUB4(buf, stmtID)
	return codec.writePacket(buf)
}

func writeComStmtPrepare(codec *packetCodec, query string) error {
	codec.resetSeq()
	buf := util.WriteByte(nil, comStmtPrepare)
	buf = util.WriteBytes(buf, []byte(query))
	return codec.writePacket(buf)
}

// writeComStmtSendLongData streams one out-of-band parameter chunk
// (spec §4.6 "Long data"): opcode, 4-byte statement id, 2-byte
// parameter index, raw chunk bytes.
func writeComStmtSendLongData(codec *packetCodec, stmtID uint32, paramIndex uint16, chunk []byte) error {
	codec.resetSeq()
	buf := util.WriteByte(nil, comStmtSendLongData)
	buf = util.WriteUB4(buf, stmtID)
	buf = util.WriteUB2(buf, paramIndex)
	buf = util.WriteBytes(buf, chunk)
	return codec.writePacket(buf)
}
