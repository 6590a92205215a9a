package mysql

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	jerrors "github.com/juju/errors"
)

// transport is the byte-stream the packet codec frames: TCP, Unix
// domain socket, or (after upgradeTLS) a TLS-wrapped version of either
// (spec.md §4.1).
type transport struct {
	conn net.Conn

	isSocket   bool
	tlsUpgraded bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	lastReadDeadline  time.Time
	lastWriteDeadline time.Time

	readBytes   uint64
	writeBytes  uint64
	readPackets uint64
	writePackets uint64

	local string
	peer  string
}

// dialTCP resolves host to one or more candidate addresses and tries
// each in order within connectTimeout, mirroring the teacher's
// MysqlTCPConn dial bookkeeping (server/net/connection.go) adapted to
// a blocking, client-initiated dial instead of accepting an inbound
// getty session.
func dialTCP(host string, port int, readTo, writeTo, connectTo time.Duration, bindAddress string) (*transport, error) {
	addrs, err := net.DefaultResolver.LookupHost(context.Background(), host)
	if err != nil || len(addrs) == 0 {
		addrs = []string{host}
	}

	dialer := &net.Dialer{Timeout: connectTo}
	if bindAddress != "" {
		if local, err := net.ResolveTCPAddr("tcp", bindAddress); err == nil {
			dialer.LocalAddr = local
		}
	}

	var lastErr error
	deadline := time.Now().Add(connectTo)
	for _, addr := range addrs {
		remaining := time.Until(deadline)
		if connectTo > 0 && remaining <= 0 {
			break
		}
		d := *dialer
		if connectTo > 0 {
			d.Timeout = remaining
		}
		conn, err := d.Dial("tcp", net.JoinHostPort(addr, fmt.Sprintf("%d", port)))
		if err == nil {
			return newTransport(conn, readTo, writeTo, false), nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate address for host %q", host)
	}
	return nil, protoErr(ErrConnectTimeout, "%v", lastErr)
}

// dialUnix connects to a Unix domain socket (spec.md §4.1
// connect_socket, and §6's prefer_socket / socket options).
func dialUnix(path string, readTo, writeTo time.Duration) (*transport, error) {
	conn, err := net.DialTimeout("unix", path, readTo)
	if err != nil {
		return nil, jerrors.Trace(err)
	}
	return newTransport(conn, readTo, writeTo, true), nil
}

func newTransport(conn net.Conn, readTo, writeTo time.Duration, isSocket bool) *transport {
	t := &transport{
		conn:         conn,
		isSocket:     isSocket,
		readTimeout:  readTo,
		writeTimeout: writeTo,
	}
	if conn.LocalAddr() != nil {
		t.local = conn.LocalAddr().String()
	}
	if conn.RemoteAddr() != nil {
		t.peer = conn.RemoteAddr().String()
	}
	return t
}

func (t *transport) applyTCPTunables(keepAlive time.Duration, noDelay bool) {
	tcpConn, ok := t.conn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcpConn.SetNoDelay(noDelay)
	if keepAlive > 0 {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(keepAlive)
	} else {
		_ = tcpConn.SetKeepAlive(false)
	}
}

// upgradeTLS switches the transport to TLS. Must be called exactly
// once and only immediately after writing the SSLRequest packet (spec
// §4.3 step 3), since the TLS handshake consumes the next bytes on the
// socket unframed.
func (t *transport) upgradeTLS(serverHost string, opts *TLSOptions) error {
	if t.tlsUpgraded {
		return protoErr(ErrSetupError, "TLS already upgraded on this transport")
	}

	cfg := &tls.Config{ServerName: serverHost}
	if opts != nil {
		cfg.InsecureSkipVerify = opts.AcceptInvalidCerts
		if opts.ServerName != "" {
			cfg.ServerName = opts.ServerName
		}
		if len(opts.RootCerts) > 0 {
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(opts.RootCerts) {
				return protoErr(ErrSetupError, "no valid certificates found in ssl root certs")
			}
			cfg.RootCAs = pool
		}
		if len(opts.ClientCert) > 0 && len(opts.ClientKey) > 0 {
			cert, err := tls.X509KeyPair(opts.ClientCert, opts.ClientKey)
			if err != nil {
				return jerrors.Annotate(err, "loading client TLS certificate")
			}
			cfg.Certificates = []tls.Certificate{cert}
		}
	}

	tlsConn := tls.Client(t.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return jerrors.Annotate(err, "TLS handshake")
	}
	t.conn = tlsConn
	t.tlsUpgraded = true
	return nil
}

func (t *transport) isInsecure() bool { return !t.tlsUpgraded }
func (t *transport) isSocketTransport() bool { return t.isSocket }

// read fills buf completely (io.ReadFull semantics), refreshing the
// read deadline only when more than a quarter of the prior deadline's
// budget has elapsed — the same refresh-throttling the teacher's
// MysqlTCPConn.recv applies, to avoid a syscall per packet header.
func (t *transport) read(buf []byte) (int, error) {
	if t.readTimeout > 0 {
		now := time.Now()
		if now.Sub(t.lastReadDeadline) > t.readTimeout/4 {
			if err := t.conn.SetReadDeadline(now.Add(t.readTimeout)); err != nil {
				return 0, newIOError("set read deadline", err)
			}
			t.lastReadDeadline = now
		}
	}

	total := 0
	for total < len(buf) {
		n, err := t.conn.Read(buf[total:])
		total += n
		atomic.AddUint64(&t.readBytes, uint64(n))
		if err != nil {
			return total, newIOError("read", err)
		}
	}
	atomic.AddUint64(&t.readPackets, 1)
	return total, nil
}

func (t *transport) write(buf []byte) error {
	if t.writeTimeout > 0 {
		now := time.Now()
		if now.Sub(t.lastWriteDeadline) > t.writeTimeout/4 {
			if err := t.conn.SetWriteDeadline(now.Add(t.writeTimeout)); err != nil {
				return newIOError("set write deadline", err)
			}
			t.lastWriteDeadline = now
		}
	}

	total := 0
	for total < len(buf) {
		n, err := t.conn.Write(buf[total:])
		total += n
		atomic.AddUint64(&t.writeBytes, uint64(n))
		if err != nil {
			return newIOError("write", err)
		}
	}
	atomic.AddUint64(&t.writePackets, 1)
	return nil
}

func (t *transport) close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
