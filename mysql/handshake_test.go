package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildHandshakePayload(serverVersion string, caps uint32, pluginName string) []byte {
	buf := []byte{protocolVersion10}
	buf = append(buf, []byte(serverVersion)...)
	buf = append(buf, 0)
	buf = append(buf, 1, 0, 0, 0) // connection id
	buf = append(buf, []byte("12345678")...) // auth-data-part-1

	buf = append(buf, 0) // filler
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, 0x2d)          // charset
	buf = append(buf, 0x02, 0x00)    // status flags
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, 21)                       // auth data len
	buf = append(buf, make([]byte, 10)...)       // reserved
	buf = append(buf, []byte("123456789012")...) // auth-data-part-2 (12 + trailing null = 13)
	buf = append(buf, 0)
	buf = append(buf, []byte(pluginName)...)
	buf = append(buf, 0)
	return buf
}

func TestParseServerHandshakeRejectsNonV10(t *testing.T) {
	_, err := parseServerHandshake([]byte{9})
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ErrUnsupportedProtocol, pe.Code)
}

func TestParseServerHandshakeRejectsMissingProtocol41(t *testing.T) {
	payload := buildHandshakePayload("8.0.30", capLongPassword, "mysql_native_password")
	_, err := parseServerHandshake(payload)
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ErrProtocol41NotSet, pe.Code)
}

func TestParseServerHandshakeMariaDBDetection(t *testing.T) {
	caps := uint32(capProtocol41 | capPluginAuth)
	payload := buildHandshakePayload("10.6.12-MariaDB-1:10.6.12+maria~ubu2004", caps, "mysql_native_password")
	hs, err := parseServerHandshake(payload)
	require.NoError(t, err)
	require.True(t, hs.isMariaDB)
	require.Equal(t, 10, hs.majorVersion)
	require.Equal(t, 6, hs.minorVersion)
}

func TestParseServerHandshakeMySQLVersionTriplet(t *testing.T) {
	caps := uint32(capProtocol41 | capPluginAuth)
	payload := buildHandshakePayload("8.0.30", caps, "mysql_native_password")
	hs, err := parseServerHandshake(payload)
	require.NoError(t, err)
	require.False(t, hs.isMariaDB)
	require.Equal(t, 8, hs.majorVersion)
	require.Equal(t, 0, hs.minorVersion)
	require.Equal(t, 30, hs.patchVersion)
}

func TestSupportsResetConnectionVersionGate(t *testing.T) {
	mysqlOld := &serverHandshake{majorVersion: 5, minorVersion: 7, patchVersion: 3}
	require.False(t, mysqlOld.supportsResetConnection())

	mysqlNew := &serverHandshake{majorVersion: 5, minorVersion: 7, patchVersion: 4}
	require.True(t, mysqlNew.supportsResetConnection())

	mariaOld := &serverHandshake{isMariaDB: true, majorVersion: 10, minorVersion: 2, patchVersion: 6}
	require.False(t, mariaOld.supportsResetConnection())

	mariaNew := &serverHandshake{isMariaDB: true, majorVersion: 10, minorVersion: 2, patchVersion: 7}
	require.True(t, mariaNew.supportsResetConnection())
}

func TestNegotiatedAuthPluginRejectsUnknown(t *testing.T) {
	_, err := negotiatedAuthPlugin("sspi_auth")
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ErrUnknownAuthPlugin, pe.Code)
}

func TestDesiredCapabilitiesIncludesConnectWithDBOnlyWhenSchemaSet(t *testing.T) {
	server := &serverHandshake{capabilities: 0xffffffff}
	opts := &Options{}
	require.Equal(t, uint32(0), desiredCapabilities(opts, server, true)&capConnectWithDB)

	opts.DBName = "mydb"
	require.NotEqual(t, uint32(0), desiredCapabilities(opts, server, true)&capConnectWithDB)
}
