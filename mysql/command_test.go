package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-client-core/util"
)

func TestParseOKPacket(t *testing.T) {
	buf := util.WriteByte(nil, tagOK)
	buf = util.WriteLength(buf, 3)
	buf = util.WriteLength(buf, 42)
	buf = util.WriteUB2(buf, 0x0002)
	buf = util.WriteUB2(buf, 0)
	buf = util.WriteBytes(buf, []byte("rows matched"))

	ok, err := parseOKPacket(buf)
	require.NoError(t, err)
	require.EqualValues(t, 3, ok.affectedRows)
	require.EqualValues(t, 42, ok.lastInsertID)
	require.EqualValues(t, 0x0002, ok.statusFlags)
	require.Equal(t, "rows matched", ok.info)
}

func TestParseErrPacket(t *testing.T) {
	buf := util.WriteByte(nil, tagErr)
	buf = util.WriteUB2(buf, 1049)
	buf = util.WriteByte(buf, '#')
	buf = util.WriteBytes(buf, []byte("42000"))
	buf = util.WriteBytes(buf, []byte("Unknown database 'x'"))

	err := parseErrPacket(buf)
	serverErr, ok := err.(*ServerError)
	require.True(t, ok)
	require.EqualValues(t, 1049, serverErr.Code)
	require.Equal(t, "42000", serverErr.SQLState)
	require.Equal(t, "Unknown database 'x'", serverErr.Message)
}

func TestParseEOFPacket(t *testing.T) {
	buf := []byte{tagEOF, 0x00, 0x00, 0x08, 0x00}
	eof, err := parseEOFPacket(buf)
	require.NoError(t, err)
	require.True(t, HasMoreResults(eof.statusFlags))
}

func TestIsEOFTerminatorDistinguishesFromLongRow(t *testing.T) {
	require.True(t, isEOFTerminator([]byte{tagEOF, 0, 0, 0, 0}))

	longRow := make([]byte, 0xfe)
	longRow[0] = tagEOF
	require.False(t, isEOFTerminator(longRow))
}
