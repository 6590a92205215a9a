package mysql

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// memFrameIO is an in-memory frameIO backed by a single byte buffer,
// used to test packetCodec without a real socket.
type memFrameIO struct {
	buf bytes.Buffer
}

func (m *memFrameIO) read(p []byte) (int, error)  { return m.buf.Read(p) }
func (m *memFrameIO) write(p []byte) error        { _, err := m.buf.Write(p); return err }

func TestWritePacketThenReadPacketRoundTrip(t *testing.T) {
	io := &memFrameIO{}
	codec := newPacketCodec(io)

	payload := []byte("SELECT 1")
	require.NoError(t, codec.writePacket(payload))

	readCodec := newPacketCodec(io)
	got, err := readCodec.readPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWritePacketSplitsAtMaxPayloadLen(t *testing.T) {
	io := &memFrameIO{}
	codec := newPacketCodec(io)

	payload := make([]byte, maxPayloadLen+10)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, codec.writePacket(payload))

	readCodec := newPacketCodec(io)
	got, err := readCodec.readPacket()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWritePacketExactMultipleOfMaxPayloadLenEmitsTrailingEmptyFrame(t *testing.T) {
	io := &memFrameIO{}
	codec := newPacketCodec(io)

	payload := make([]byte, maxPayloadLen)
	require.NoError(t, codec.writePacket(payload))

	// Header of the first frame announces the full maxPayloadLen.
	header := make([]byte, 4)
	_, err := io.buf.Read(header)
	require.NoError(t, err)
	require.Equal(t, maxPayloadLen, getUint24(header[0:3]))

	rest := io.buf.Bytes()
	// Skip the payload bytes already pending; the trailing 4-byte
	// header of length 0 should be the final thing written.
	trailing := rest[len(rest)-4:]
	require.Equal(t, 0, getUint24(trailing[0:3]))
}

func TestSequenceIDIncrementsPerFrameAndResetsPerCommand(t *testing.T) {
	io := &memFrameIO{}
	codec := newPacketCodec(io)

	require.NoError(t, codec.writePacket([]byte("a")))
	require.Equal(t, byte(1), codec.currentSeq())

	codec.resetSeq()
	require.Equal(t, byte(0), codec.currentSeq())

	codec.setSeq(5)
	require.Equal(t, byte(5), codec.currentSeq())
}
