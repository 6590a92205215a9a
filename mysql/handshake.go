package mysql

import (
	"strconv"
	"strings"

	"github.com/zhukovaskychina/xmysql-client-core/util"
)

const protocolVersion10 = 10

// serverHandshake is the parsed handshake v10 packet (spec §4.3 step 1).
type serverHandshake struct {
	serverVersion  string
	connectionID   uint32
	authPluginData []byte // the 20-byte nonce (scramble seed)
	capabilities   uint32
	characterSet   byte
	statusFlags    uint16
	authPluginName string
	isMariaDB      bool
	majorVersion   int
	minorVersion   int
	patchVersion   int
}

// parseServerHandshake parses the protocol v10 payload per the MySQL
// wire format: proto byte, NUL-terminated server version, 4-byte
// connection id, 8-byte auth-data-part-1, filler, 2-byte capability
// lower word, charset byte, 2-byte status flags, 2-byte capability
// upper word, auth-data-len byte, 10 reserved bytes, auth-data-part-2
// (max(13, len-8) bytes), NUL-terminated auth plugin name.
//
// util's ReadXxx helpers index the buffer directly and panic on
// truncation; that panic is recovered here and reported as a
// protocol error instead of crashing the caller.
func parseServerHandshake(payload []byte) (hs *serverHandshake, err error) {
	defer func() {
		if r := recover(); r != nil {
			hs = nil
			err = protoErr(ErrUnexpectedPacket, "truncated handshake packet: %v", r)
		}
	}()

	cursor := 0
	var protoVer byte
	cursor, protoVer = util.ReadByte(payload, cursor)
	if protoVer != protocolVersion10 {
		return nil, protoErr(ErrUnsupportedProtocol, "server announced protocol version %d, want 10", protoVer)
	}

	var versionRaw []byte
	cursor, versionRaw = util.ReadWithNull(payload, cursor)

	var connID uint32
	cursor, connID = util.ReadUB4(payload, cursor)

	var authData1 []byte
	cursor, authData1 = util.ReadBytes(payload, cursor, 8)
	cursor++ // filler

	var capLower uint16
	cursor, capLower = util.ReadUB2(payload, cursor)
	var charset byte
	cursor, charset = util.ReadByte(payload, cursor)
	var statusFlags uint16
	cursor, statusFlags = util.ReadUB2(payload, cursor)
	var capUpper uint16
	cursor, capUpper = util.ReadUB2(payload, cursor)

	capabilities := uint32(capLower) | uint32(capUpper)<<16

	var authDataLen byte
	cursor, authDataLen = util.ReadByte(payload, cursor)
	cursor, _ = util.ReadBytes(payload, cursor, 10) // reserved

	authData2Len := 13
	if int(authDataLen)-8 > authData2Len {
		authData2Len = int(authDataLen) - 8
	}
	var authData2 []byte
	cursor, authData2 = util.ReadBytes(payload, cursor, authData2Len)
	nonce := append(append([]byte{}, authData1...), trimTrailingNull(authData2)...)

	pluginName := "mysql_native_password"
	if capabilities&capPluginAuth != 0 && cursor < len(payload) {
		var name []byte
		_, name = util.ReadWithNull(payload, cursor)
		if len(name) > 0 {
			pluginName = string(name)
		}
	}

	if capabilities&capProtocol41 == 0 {
		return nil, protoErr(ErrProtocol41NotSet, "server did not announce CLIENT_PROTOCOL_41")
	}

	hs = &serverHandshake{
		serverVersion:  string(versionRaw),
		connectionID:   connID,
		authPluginData: nonce,
		capabilities:   capabilities,
		characterSet:   charset,
		statusFlags:    statusFlags,
		authPluginName: pluginName,
	}
	parseServerVersion(hs)
	return hs, nil
}

func trimTrailingNull(b []byte) []byte {
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return b
}

// parseServerVersion extracts the MariaDB-ness and numeric triplet from
// server_version, treating a case-insensitive "-MariaDB" suffix marker
// as the boundary between the version triplet and the vendor suffix.
func parseServerVersion(hs *serverHandshake) {
	v := hs.serverVersion
	lower := strings.ToLower(v)
	if idx := strings.Index(lower, "-mariadb"); idx >= 0 {
		hs.isMariaDB = true
		v = v[:idx]
	}
	parts := strings.SplitN(v, "-", 2)[0]
	nums := strings.Split(parts, ".")
	if len(nums) > 0 {
		hs.majorVersion, _ = strconv.Atoi(nums[0])
	}
	if len(nums) > 1 {
		hs.minorVersion, _ = strconv.Atoi(nums[1])
	}
	if len(nums) > 2 {
		hs.patchVersion, _ = strconv.Atoi(nums[2])
	}
}

// desiredCapabilities computes the client-requested capability bitmask
// per spec §4.3 step 2, before intersecting with the server's
// advertised bits.
func desiredCapabilities(opts *Options, server *serverHandshake, insecure bool) uint32 {
	caps := capProtocol41 | capSecureConnection | capLongPassword |
		capTransactions | capLocalFiles | capMultiStatements |
		capMultiResults | capPSMultiResults | capPluginAuth | capConnectAttrs

	if server.capabilities&capLongFlag != 0 {
		caps |= capLongFlag
	}
	if opts.Compress {
		caps |= capCompress
	}
	if opts.DBName != "" {
		caps |= capConnectWithDB
	}
	if opts.TLS != nil && insecure {
		caps |= capSSL
	}
	caps |= opts.AdditionalCapabilities

	return caps
}

// negotiatedAuthPlugin validates the server-named plugin against the
// two this client supports (spec §4.3 step 4).
func negotiatedAuthPlugin(name string) (string, error) {
	if name == "" {
		name = "mysql_native_password"
	}
	switch name {
	case "mysql_native_password", "caching_sha2_password":
		return name, nil
	default:
		return "", protoErr(ErrUnknownAuthPlugin, "unsupported auth plugin %q", name)
	}
}

// supportsResetConnection reports whether this server version is new
// enough to support a soft COM_RESET_CONNECTION (MySQL > 5.7.3, MariaDB
// >= 10.2.7); see the Open Question resolution in DESIGN.md.
func (h *serverHandshake) supportsResetConnection() bool {
	if h.isMariaDB {
		return versionAtLeast(h.majorVersion, h.minorVersion, h.patchVersion, 10, 2, 7)
	}
	return versionGreaterThan(h.majorVersion, h.minorVersion, h.patchVersion, 5, 7, 3)
}

func versionAtLeast(maj, min, patch, wantMaj, wantMin, wantPatch int) bool {
	if maj != wantMaj {
		return maj > wantMaj
	}
	if min != wantMin {
		return min > wantMin
	}
	return patch >= wantPatch
}

func versionGreaterThan(maj, min, patch, wantMaj, wantMin, wantPatch int) bool {
	if maj != wantMaj {
		return maj > wantMaj
	}
	if min != wantMin {
		return min > wantMin
	}
	return patch > wantPatch
}
