package mysql

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhukovaskychina/xmysql-client-core/util"
)

// fakeServer drives the server side of a handshake over a net.Pipe,
// used in place of a live mysqld per the in-process testing approach
// this module uses throughout (no server binary is available in CI).
type fakeServer struct {
	conn  net.Conn
	codec *packetCodec
}

func newFakeServer(conn net.Conn) *fakeServer {
	return &fakeServer{conn: conn, codec: newPacketCodec(newTransport(conn, 0, 0, false))}
}

func (f *fakeServer) writeHandshake(nonce []byte) error {
	buf := []byte{protocolVersion10}
	buf = append(buf, []byte("8.0.30")...)
	buf = append(buf, 0)
	buf = append(buf, 7, 0, 0, 0)
	buf = append(buf, nonce[:8]...)
	buf = append(buf, 0)

	caps := uint32(capProtocol41 | capSecureConnection | capLongPassword |
		capTransactions | capLocalFiles | capMultiStatements | capMultiResults |
		capPSMultiResults | capPluginAuth | capConnectAttrs)
	buf = append(buf, byte(caps), byte(caps>>8))
	buf = append(buf, 0x2d)
	buf = append(buf, 0x02, 0x00)
	buf = append(buf, byte(caps>>16), byte(caps>>24))
	buf = append(buf, 21)
	buf = append(buf, make([]byte, 10)...)
	buf = append(buf, nonce[8:20]...)
	buf = append(buf, 0)
	buf = append(buf, []byte("mysql_native_password")...)
	buf = append(buf, 0)

	return f.codec.writePacket(buf)
}

func (f *fakeServer) readHandshakeResponse() ([]byte, error) {
	return f.codec.readPacket()
}

func (f *fakeServer) writeOK() error {
	buf := util.WriteByte(nil, tagOK)
	buf = util.WriteLength(buf, 0)
	buf = util.WriteLength(buf, 0)
	buf = util.WriteUB2(buf, 0x0002)
	buf = util.WriteUB2(buf, 0)
	return f.codec.writePacket(buf)
}

func TestPerformHandshakeNativePasswordHappyPath(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	nonce := []byte("01234567890123456789")
	server := newFakeServer(serverConn)

	errc := make(chan error, 1)
	go func() {
		if err := server.writeHandshake(nonce); err != nil {
			errc <- err
			return
		}
		if _, err := server.readHandshakeResponse(); err != nil {
			errc <- err
			return
		}
		errc <- server.writeOK()
	}()

	tr := newTransport(clientConn, 2*time.Second, 2*time.Second, false)
	codec := newPacketCodec(tr)
	opts := &Options{User: "root", Password: "secret"}

	outcome, err := performHandshake(tr, codec, opts)
	require.NoError(t, err)
	require.Equal(t, "8.0.30", outcome.server.serverVersion)
	require.False(t, outcome.compressed)
	require.NoError(t, <-errc)
}
