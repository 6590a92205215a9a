package mysql

// frameIO is the byte-stream a packetCodec frames over: either the raw
// transport or, once CLIENT_COMPRESS has been negotiated, the
// compressedTransport defined in compress.go.
type frameIO interface {
	read(buf []byte) (int, error)
	write(buf []byte) error
}

// packetCodec implements the logical-packet layer of the protocol
// (spec.md §4.2): a 4-byte header (3-byte little-endian length plus a
// one-byte sequence id) in front of every physical frame, with
// payloads at or above maxPayloadLen split across consecutive frames
// and terminated by a zero-length frame when the logical payload is an
// exact multiple of maxPayloadLen.
type packetCodec struct {
	io  frameIO
	seq byte
}

func newPacketCodec(io frameIO) *packetCodec {
	return &packetCodec{io: io}
}

// resetSeq resets the sequence id to 0, as required at the start of
// every new command (spec §4.2).
func (p *packetCodec) resetSeq() { p.seq = 0 }

// setSeq forces the sequence id, used to resynchronize when continuing
// to read subsequent result sets in a multi-statement response without
// having issued a new command in between (spec §4.6 "sync_seq_id").
func (p *packetCodec) setSeq(seq byte) { p.seq = seq }

func (p *packetCodec) currentSeq() byte { return p.seq }

// writePacket frames payload as one or more physical packets and
// writes them to the underlying frameIO.
func (p *packetCodec) writePacket(payload []byte) error {
	offset := 0
	for {
		chunk := payload[offset:]
		n := len(chunk)
		if n > maxPayloadLen {
			n = maxPayloadLen
		}
		if err := p.writeFrame(chunk[:n]); err != nil {
			return err
		}
		offset += n
		if n < maxPayloadLen {
			// Final, possibly-empty, frame already sent unless the
			// logical payload length is itself an exact multiple of
			// maxPayloadLen (handled by the loop continuing below).
			return nil
		}
		if offset == len(payload) {
			// Payload was an exact multiple of maxPayloadLen: the
			// server can only tell the message ended by seeing a
			// trailing empty frame (spec §4.2 edge case).
			return p.writeFrame(nil)
		}
	}
}

func (p *packetCodec) writeFrame(payload []byte) error {
	header := make([]byte, 4)
	header[0] = byte(len(payload))
	header[1] = byte(len(payload) >> 8)
	header[2] = byte(len(payload) >> 16)
	header[3] = p.seq
	p.seq++

	if err := p.io.write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return p.io.write(payload)
}

// readPacket reads one logical packet, transparently reassembling
// fragments split across the maxPayloadLen boundary.
func (p *packetCodec) readPacket() ([]byte, error) {
	var out []byte
	for {
		header := make([]byte, 4)
		if _, err := p.io.read(header); err != nil {
			return nil, err
		}
		length := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
		seq := header[3]
		p.seq = seq + 1

		if length == 0 {
			return out, nil
		}
		frame := make([]byte, length)
		if _, err := p.io.read(frame); err != nil {
			return nil, err
		}
		out = append(out, frame...)
		if length < maxPayloadLen {
			return out, nil
		}
		// length == maxPayloadLen: more frames (or a trailing empty
		// frame) follow for this logical packet.
	}
}

func putUint24(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func getUint24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}
