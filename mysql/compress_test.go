package mysql

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressedTransportRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := newCompressedTransport(newTransport(clientConn, 0, 0, false))
	server := newCompressedTransport(newTransport(serverConn, 0, 0, false))

	small := []byte("ping")
	large := repeatByte(200, 'x')

	done := make(chan error, 1)
	go func() {
		if err := client.write(small); err != nil {
			done <- err
			return
		}
		done <- client.write(large)
	}()

	gotSmall := make([]byte, len(small))
	_, err := server.read(gotSmall)
	require.NoError(t, err)
	require.Equal(t, small, gotSmall)

	gotLarge := make([]byte, len(large))
	_, err = server.read(gotLarge)
	require.NoError(t, err)
	require.Equal(t, large, gotLarge)

	require.NoError(t, <-done)
}

func TestCompressedTransportVerbatimPassthroughForShortPayload(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := newCompressedTransport(newTransport(clientConn, 0, 0, false))
	server := newCompressedTransport(newTransport(serverConn, 0, 0, false))

	payload := []byte("x")
	errc := make(chan error, 1)
	go func() { errc <- client.write(payload) }()

	header := make([]byte, 7)
	_, err := server.under.read(header)
	require.NoError(t, err)
	require.Equal(t, 0, getUint24(header[4:7]))

	body := make([]byte, getUint24(header[0:3]))
	_, err = server.under.read(body)
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.NoError(t, <-errc)
}

func repeatByte(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}
