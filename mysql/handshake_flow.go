package mysql

import (
	"github.com/zhukovaskychina/xmysql-client-core/util"
)

const maxPacketSize uint32 = 1<<24 - 1
const defaultCollation byte = 0x2d // utf8mb4_general_ci

// handshakeOutcome carries what the Connection façade needs to retain
// after a successful handshake.
type handshakeOutcome struct {
	server       *serverHandshake
	capabilities uint32
	compressed   bool
}

// performHandshake drives the full exchange described in spec §4.3: it
// consumes the server's handshake v10 packet, negotiates capabilities
// and TLS, runs the chosen auth plugin's completion protocol, and
// reports whether compression was negotiated so the caller can switch
// the packetCodec's frameIO to a compressedTransport.
func performHandshake(tr *transport, codec *packetCodec, opts *Options) (*handshakeOutcome, error) {
	payload, err := codec.readPacket()
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 && payload[0] == tagErr {
		return nil, parseErrPacket(payload)
	}

	server, err := parseServerHandshake(payload)
	if err != nil {
		return nil, err
	}

	tlsRequested := opts.TLS != nil && tr.isInsecure()
	desired := desiredCapabilities(opts, server, tr.isInsecure())
	caps := desired & server.capabilities

	if tlsRequested {
		if server.capabilities&capSSL == 0 {
			return nil, protoErr(ErrTlsNotSupported, "TLS requested but server lacks CLIENT_SSL")
		}
		caps |= capSSL
		if err := writeSSLRequest(codec, caps); err != nil {
			return nil, err
		}
		if err := tr.upgradeTLS(opts.Host, opts.TLS); err != nil {
			return nil, err
		}
	}

	plugin, err := negotiatedAuthPlugin(server.authPluginName)
	if err != nil {
		return nil, err
	}

	authResponse := initialAuthResponse(plugin, []byte(opts.Password), server.authPluginData)
	if err := writeHandshakeResponse41(codec, opts, caps, plugin, authResponse); err != nil {
		return nil, err
	}

	flow := &authFlow{codec: codec, tr: tr, opts: opts}
	if err := flow.run(plugin, server.authPluginData); err != nil {
		return nil, err
	}

	return &handshakeOutcome{
		server:       server,
		capabilities: caps,
		compressed:   caps&capCompress != 0,
	}, nil
}

// writeSSLRequest sends the header-only SSLRequest packet (spec §4.3
// step 3): capabilities, max packet size, collation, then 23 reserved
// zero bytes.
func writeSSLRequest(codec *packetCodec, caps uint32) error {
	buf := make([]byte, 0, 32)
	buf = util.WriteUB4(buf, caps)
	buf = util.WriteUB4(buf, maxPacketSize)
	buf = util.WriteByte(buf, defaultCollation)
	buf = append(buf, make([]byte, 23)...)
	return codec.writePacket(buf)
}

// writeHandshakeResponse41 encodes the HandshakeResponse41 packet
// (spec §4.3 step 5): capabilities, max packet, collation, 23 reserved
// bytes, NUL-terminated user, length-encoded auth response, optional
// NUL-terminated default schema, optional NUL-terminated plugin name,
// and (if CLIENT_CONNECT_ATTRS) a length-encoded attribute map.
func writeHandshakeResponse41(codec *packetCodec, opts *Options, caps uint32, plugin string, authResponse []byte) error {
	buf := make([]byte, 0, 128)
	buf = util.WriteUB4(buf, caps)
	buf = util.WriteUB4(buf, maxPacketSize)
	buf = util.WriteByte(buf, defaultCollation)
	buf = append(buf, make([]byte, 23)...)
	buf = util.WriteWithNull(buf, []byte(opts.User))

	if caps&capPluginAuthLenencClientData != 0 {
		buf = util.WriteWithLength(buf, authResponse)
	} else {
		buf = util.WriteByte(buf, byte(len(authResponse)))
		buf = util.WriteBytes(buf, authResponse)
	}

	if caps&capConnectWithDB != 0 {
		buf = util.WriteWithNull(buf, []byte(opts.DBName))
	}
	if caps&capPluginAuth != 0 {
		buf = util.WriteWithNull(buf, []byte(plugin))
	}
	if caps&capConnectAttrs != 0 {
		buf = append(buf, encodeConnectAttrs(opts.mergedConnectAttrs())...)
	}

	return codec.writePacket(buf)
}

func encodeConnectAttrs(attrs map[string]string) []byte {
	var body []byte
	for k, v := range attrs {
		body = util.WriteWithLength(body, []byte(k))
		body = util.WriteWithLength(body, []byte(v))
	}
	out := util.WriteLength(nil, int64(len(body)))
	return append(out, body...)
}
