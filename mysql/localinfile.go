package mysql

import "sync"

// localInfileMu is held while handleLocalInfile reads
// Options.LocalInfileHandler. No function in this package changes that
// field, and the handler itself runs after the lock is released.
var localInfileMu sync.Mutex

// handleLocalInfile implements spec §4.6 step 3: invoke the configured
// handler with a streaming sink, then terminate with an empty packet
// regardless of whether a handler was configured or what it returned.
func handleLocalInfile(conn *Connection, filename string) error {
	localInfileMu.Lock()
	handler := conn.opts.LocalInfileHandler
	localInfileMu.Unlock()

	frameSize := maxPayloadLen - 4
	if conn.maxAllowedPacket > 4 && int(conn.maxAllowedPacket)-4 < frameSize {
		frameSize = int(conn.maxAllowedPacket) - 4
	}

	sink := &localInfileSink{conn: conn, frameSize: frameSize}

	var handlerErr error
	if handler != nil {
		handlerErr = handler(filename, sink)
	}
	if flushErr := sink.flush(); flushErr != nil && handlerErr == nil {
		handlerErr = flushErr
	}

	// Absent a handler, or after one returns, always terminate with an
	// empty packet; if no handler ran the server reports its own error
	// for the file having produced no data, which the caller observes
	// via the OK/ERR read that follows in readResultSetHeader.
	if err := conn.codec.writePacket(nil); err != nil {
		if handlerErr != nil {
			return handlerErr
		}
		return err
	}
	return handlerErr
}

// localInfileSink buffers writes up to frameSize before flushing a
// wire packet, so a handler that calls Write in small increments
// doesn't emit one physical packet per call.
type localInfileSink struct {
	conn      *Connection
	frameSize int
	buf       []byte
}

func (s *localInfileSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	for len(s.buf) >= s.frameSize {
		if err := s.conn.codec.writePacket(s.buf[:s.frameSize]); err != nil {
			return 0, err
		}
		s.buf = s.buf[s.frameSize:]
	}
	return len(p), nil
}

func (s *localInfileSink) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	err := s.conn.codec.writePacket(s.buf)
	s.buf = nil
	return err
}
