package mysql

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransportReadWriteRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := newTransport(clientConn, 0, 0, false)
	server := newTransport(serverConn, 0, 0, false)

	payload := []byte("hello mysql")
	errc := make(chan error, 1)
	go func() { errc <- client.write(payload) }()

	got := make([]byte, len(payload))
	_, err := server.read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, <-errc)

	require.EqualValues(t, len(payload), client.writeBytes)
	require.EqualValues(t, len(payload), server.readBytes)
}

func TestTransportCloseIsIdempotent(t *testing.T) {
	clientConn, _ := net.Pipe()
	tr := newTransport(clientConn, 0, 0, false)
	require.NoError(t, tr.close())
	require.NoError(t, tr.close())
}

func TestUpgradeTLSRejectsDoubleUpgrade(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()
	tr := newTransport(clientConn, 0, 0, false)
	tr.tlsUpgraded = true

	err := tr.upgradeTLS("localhost", nil)
	require.Error(t, err)
}
