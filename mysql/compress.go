package mysql

import (
	"bytes"
	"compress/zlib"
	"io"
)

// compressMinLen is the smallest physical-frame payload worth
// compressing; anything shorter is sent verbatim with an uncompressed
// length of 0 (the overhead of the zlib header/trailer would exceed
// the savings).
const compressMinLen = 50

// compressedTransport wraps a transport in the CLIENT_COMPRESS
// envelope (spec §4.2): each envelope carries a 7-byte header
// (3-byte compressed length, 1-byte sequence id, 3-byte uncompressed
// length) around a zlib-compressed payload, or the verbatim payload
// when the uncompressed-length field is 0.
//
// It is switched in immediately after authentication succeeds when
// both sides negotiated CLIENT_COMPRESS, and frames the same
// packetCodec byte stream underneath, so packetCodec itself never
// needs to know compression is active.
type compressedTransport struct {
	under *transport
	seq   byte

	pending []byte
}

func newCompressedTransport(under *transport) *compressedTransport {
	return &compressedTransport{under: under}
}

func (c *compressedTransport) read(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		if len(c.pending) == 0 {
			if err := c.fillPending(); err != nil {
				return total, err
			}
		}
		n := copy(buf[total:], c.pending)
		c.pending = c.pending[n:]
		total += n
	}
	return total, nil
}

func (c *compressedTransport) fillPending() error {
	header := make([]byte, 7)
	if _, err := c.under.read(header); err != nil {
		return err
	}
	compLen := getUint24(header[0:3])
	c.seq = header[3] + 1
	uncompLen := getUint24(header[4:7])

	payload := make([]byte, compLen)
	if compLen > 0 {
		if _, err := c.under.read(payload); err != nil {
			return err
		}
	}

	if uncompLen == 0 {
		c.pending = payload
		return nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return newIOError("zlib decompress", err)
	}
	defer zr.Close()
	out := make([]byte, uncompLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return newIOError("zlib decompress", err)
	}
	c.pending = out
	return nil
}

func (c *compressedTransport) write(buf []byte) error {
	uncompLen := len(buf)
	var payload []byte
	envelopeUncompLen := 0

	if uncompLen >= compressMinLen {
		var b bytes.Buffer
		zw := zlib.NewWriter(&b)
		if _, err := zw.Write(buf); err != nil {
			return newIOError("zlib compress", err)
		}
		if err := zw.Close(); err != nil {
			return newIOError("zlib compress", err)
		}
		if b.Len() < uncompLen {
			payload = b.Bytes()
			envelopeUncompLen = uncompLen
		}
	}
	if payload == nil {
		payload = buf
		envelopeUncompLen = 0
	}

	header := make([]byte, 7)
	putUint24(header[0:3], len(payload))
	header[3] = c.seq
	c.seq++
	putUint24(header[4:7], envelopeUncompLen)

	if err := c.under.write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return c.under.write(payload)
}
