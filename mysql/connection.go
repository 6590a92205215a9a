package mysql

import (
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/zhukovaskychina/xmysql-client-core/logger"
)

// Connection is a single stateful MySQL/MariaDB session (spec §3's
// Connection state): the façade tying transport, packet codec,
// handshake engine, command layer, statement cache and result-set
// reader into one object.
//
// A Connection is strictly single-threaded and non-reentrant (spec
// §5): every method blocks until completion, and no method may be
// called while a ResultSet obtained from it is still mid-stream.
type Connection struct {
	opts *Options
	log  *logrus.Entry

	tr    *transport
	codec *packetCodec

	capabilities uint32
	statusFlags  uint16
	connectionID uint32

	serverVersion   string
	mariaDBVersion  bool
	handshake       *serverHandshake

	characterSet byte

	lastOK     *okResult
	hasResults bool

	stmtCache        *stmtCache
	rowCodec         RowCodec
	maxAllowedPacket uint32

	connected bool
}

// Connect establishes a new session per spec §3's Lifecycle paragraph:
// dial, handshake, fetch max_allowed_packet, run init commands, and
// (if prefer_socket applies) attempt the loopback-to-Unix-socket
// upgrade.
func Connect(opts *Options) (*Connection, error) {
	if opts.StmtCacheSize < 0 {
		opts.StmtCacheSize = 0
	}

	conn, err := dialAndHandshake(opts)
	if err != nil {
		return nil, err
	}

	if opts.PreferSocket && isLoopback(opts.Host) {
		conn.tryUpgradeToSocket()
	}

	for _, stmt := range opts.Init {
		if _, err := conn.Exec(stmt); err != nil {
			conn.poisoned()
			return nil, err
		}
	}

	return conn, nil
}

func dialAndHandshake(opts *Options) (*Connection, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Default()
	}

	var tr *transport
	var err error
	if opts.Socket != "" {
		tr, err = dialUnix(opts.Socket, opts.ReadTimeout, opts.WriteTimeout)
	} else {
		tr, err = dialTCP(opts.Host, opts.Port, opts.ReadTimeout, opts.WriteTimeout, opts.ConnectTimeout, opts.BindAddress)
	}
	if err != nil {
		return nil, err
	}
	tr.applyTCPTunables(opts.TCPKeepAlive, opts.TCPNoDelay)

	codec := newPacketCodec(tr)
	outcome, err := performHandshake(tr, codec, opts)
	if err != nil {
		tr.close()
		return nil, err
	}

	if outcome.compressed {
		codec = newPacketCodec(newCompressedTransport(tr))
	}

	conn := &Connection{
		opts:           opts,
		log:            log,
		tr:             tr,
		codec:          codec,
		capabilities:   outcome.capabilities,
		statusFlags:    outcome.server.statusFlags,
		connectionID:   outcome.server.connectionID,
		serverVersion:  outcome.server.serverVersion,
		mariaDBVersion: outcome.server.isMariaDB,
		handshake:      outcome.server,
		characterSet:   outcome.server.characterSet,
		stmtCache:      newStmtCache(opts.StmtCacheSize),
		rowCodec:       defaultRowCodec{},
	}

	if err := conn.fetchMaxAllowedPacket(); err != nil {
		tr.close()
		return nil, err
	}
	conn.connected = true

	return conn, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Connection) fetchMaxAllowedPacket() error {
	rs, err := c.queryRaw("SELECT @@max_allowed_packet")
	if err != nil {
		return err
	}
	if rs == nil {
		return protoErr(ErrSetupError, "SELECT @@max_allowed_packet returned no result set")
	}
	row, ok, err := rs.Next()
	if err != nil {
		return err
	}
	if ok {
		if s, isStr := row[0].(string); isStr {
			if v, err := strconv.ParseUint(s, 10, 32); err == nil {
				c.maxAllowedPacket = uint32(v)
			}
		}
		// Drain the terminator.
		for {
			_, more, err := rs.Next()
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
	}
	if c.maxAllowedPacket == 0 {
		c.maxAllowedPacket = 1 << 20
	}
	return nil
}

// tryUpgradeToSocket implements the prefer_socket option (spec §6):
// after a loopback TCP handshake, query @@socket and, if non-empty,
// build a second connection over that Unix socket, swapping it in;
// any failure is silently absorbed and the TCP connection is kept.
func (c *Connection) tryUpgradeToSocket() {
	rs, err := c.queryRaw("SELECT @@socket")
	if err != nil {
		return
	}
	row, ok, err := rs.Next()
	if err != nil || !ok {
		return
	}
	path, _ := row[0].(string)
	for {
		_, more, err := rs.Next()
		if err != nil || !more {
			break
		}
	}
	if path == "" {
		return
	}

	socketOpts := *c.opts
	socketOpts.Socket = path
	socketOpts.Host = ""
	socketOpts.PreferSocket = false

	upgraded, err := dialAndHandshake(&socketOpts)
	if err != nil {
		c.log.WithError(err).Debug("prefer_socket upgrade failed, staying on tcp")
		return
	}

	old := c.tr
	c.tr = upgraded.tr
	c.codec = upgraded.codec
	c.capabilities = upgraded.capabilities
	c.statusFlags = upgraded.statusFlags
	c.connectionID = upgraded.connectionID
	c.handshake = upgraded.handshake
	c.maxAllowedPacket = upgraded.maxAllowedPacket
	_ = old.close()
}

// poisoned marks this Connection unusable after an I/O failure (spec
// §5): any subsequent call should fail fast rather than touch a socket
// in an undefined protocol state.
func (c *Connection) poisoned() {
	c.connected = false
	c.log.WithField("conn_id", c.connectionID).Debug("connection poisoned")
}

func (c *Connection) requireIdle() error {
	if c.hasResults {
		return protoErr(ErrUnexpectedPacket, "a result set is still being streamed on this connection")
	}
	if !c.connected {
		return protoErr(ErrSetupError, "connection is closed or poisoned")
	}
	return nil
}

// queryRaw issues a text query and returns its first result set
// (nil if the response was a plain OK), without recursing into
// max_allowed_packet bookkeeping — used internally during setup before
// Connection.connected is true.
func (c *Connection) queryRaw(query string) (*ResultSet, error) {
	if err := writeComQuery(c.codec, query); err != nil {
		c.poisoned()
		return nil, err
	}
	outcome, err := readResultSetHeader(c, false)
	if err != nil {
		c.poisoned()
		return nil, err
	}
	if outcome.ok != nil {
		c.lastOK = outcome.ok
		return nil, nil
	}
	return outcome.rows, nil
}

// Query executes a text query and returns the first result set.
func (c *Connection) Query(query string) (*ResultSet, error) {
	if err := c.requireIdle(); err != nil {
		return nil, err
	}
	return c.queryRaw(query)
}

// Exec executes a text statement expected to return no rows, returning
// the server's affected-rows / last-insert-id.
func (c *Connection) Exec(query string) (*okResult, error) {
	if err := c.requireIdle(); err != nil {
		return nil, err
	}
	if err := writeComQuery(c.codec, query); err != nil {
		c.poisoned()
		return nil, err
	}
	outcome, err := readResultSetHeader(c, false)
	if err != nil {
		c.poisoned()
		return nil, err
	}
	if outcome.ok == nil {
		// A statement the caller expected to be rowless returned a
		// result set; drain it so the connection is left idle.
		for {
			_, more, derr := outcome.rows.Next()
			if derr != nil {
				c.poisoned()
				return nil, derr
			}
			if !more {
				break
			}
		}
		return c.lastOK, nil
	}
	c.lastOK = outcome.ok
	return outcome.ok, nil
}

// Ping sends COM_PING and waits for the OK.
func (c *Connection) Ping() error {
	if err := c.requireIdle(); err != nil {
		return err
	}
	if err := writeComPing(c.codec); err != nil {
		c.poisoned()
		return err
	}
	payload, err := c.codec.readPacket()
	if err != nil {
		c.poisoned()
		return err
	}
	if len(payload) > 0 && payload[0] == tagErr {
		return parseErrPacket(payload)
	}
	ok, err := parseOKPacket(payload)
	if err != nil {
		c.poisoned()
		return err
	}
	c.lastOK = ok
	c.statusFlags = ok.statusFlags
	return nil
}

// UseDatabase sends COM_INIT_DB.
func (c *Connection) UseDatabase(schema string) error {
	if err := c.requireIdle(); err != nil {
		return err
	}
	if err := writeComInitDB(c.codec, schema); err != nil {
		c.poisoned()
		return err
	}
	payload, err := c.codec.readPacket()
	if err != nil {
		c.poisoned()
		return err
	}
	if len(payload) > 0 && payload[0] == tagErr {
		return parseErrPacket(payload)
	}
	ok, err := parseOKPacket(payload)
	if err != nil {
		c.poisoned()
		return err
	}
	c.lastOK = ok
	return nil
}

// Prepare implements spec §4.5: rewrite named parameters, consult the
// cache, and on miss issue COM_STMT_PREPARE.
func (c *Connection) Prepare(query string) (*Statement, error) {
	if err := c.requireIdle(); err != nil {
		return nil, err
	}

	rewritten, names := rewriteNamedParams(query)

	if c.stmtCache.enabled() {
		if cached := c.stmtCache.get(rewritten); cached != nil {
			return cached, nil
		}
	}

	stmt, err := prepareStatement(c.codec, c.connectionID, rewritten, names)
	if err != nil {
		c.poisoned()
		return nil, err
	}

	if c.stmtCache.enabled() {
		evicted := c.stmtCache.put(rewritten, stmt)
		stmt.retain()
		if evicted != nil && evicted.release() {
			_ = c.closeStatementHandle(evicted)
		}
	}

	return stmt, nil
}

// ExecutePositional runs a prepared statement with positional
// arguments.
func (c *Connection) ExecutePositional(stmt *Statement, args ...interface{}) (*ResultSet, error) {
	if err := c.requireIdle(); err != nil {
		return nil, err
	}
	if stmt.connID != c.connectionID {
		return nil, protoErr(ErrSetupError, "statement %d belongs to a different connection", stmt.id)
	}
	if len(args) != stmt.numParams {
		return nil, protoErr(ErrMismatchedStmtParams, "statement %d expects %d parameters, got %d", stmt.id, stmt.numParams, len(args))
	}
	if err := writeComStmtExecute(c.codec, stmt, args, c.maxAllowedPacket); err != nil {
		c.poisoned()
		return nil, err
	}
	outcome, err := readResultSetHeader(c, true)
	if err != nil {
		c.poisoned()
		return nil, err
	}
	if outcome.ok != nil {
		c.lastOK = outcome.ok
		return nil, nil
	}
	return outcome.rows, nil
}

// ExecuteNamed resolves named arguments against stmt's parameter
// names (spec §4.5 step 1) before executing.
func (c *Connection) ExecuteNamed(stmt *Statement, named map[string]interface{}) (*ResultSet, error) {
	args, err := resolvePositionalArgs(stmt, named)
	if err != nil {
		return nil, err
	}
	return c.ExecutePositional(stmt, args...)
}

// CloseStatement releases the caller's reference to stmt, issuing
// COM_STMT_CLOSE once the refcount reaches zero and the statement
// cache (if any) no longer holds it.
func (c *Connection) CloseStatement(stmt *Statement) error {
	if c.stmtCache.enabled() {
		if _, ok := c.stmtCache.entries[stmt.rewrittenQuery]; ok {
			stmt.release()
			return nil
		}
	}
	if stmt.release() {
		return c.closeStatementHandle(stmt)
	}
	return nil
}

func (c *Connection) closeStatementHandle(stmt *Statement) error {
	return writeComStmtClose(c.codec, stmt.id)
}

// Reset implements spec §3's Lifecycle reset rule: a soft
// COM_RESET_CONNECTION when the server version supports it, else a
// full reconnect. Per the Open Question resolution recorded in
// DESIGN.md, a failed soft reset poisons the connection rather than
// silently falling back — the caller must reconnect.
func (c *Connection) Reset() error {
	if err := c.requireIdle(); err != nil {
		return err
	}

	for _, stmt := range c.stmtCache.drain() {
		_ = c.closeStatementHandle(stmt)
	}

	if c.handshake.supportsResetConnection() {
		if err := writeComResetConnection(c.codec); err != nil {
			c.poisoned()
			return err
		}
		payload, err := c.codec.readPacket()
		if err != nil {
			c.poisoned()
			return err
		}
		if len(payload) > 0 && payload[0] == tagErr {
			c.poisoned()
			return parseErrPacket(payload)
		}
		ok, err := parseOKPacket(payload)
		if err != nil {
			c.poisoned()
			return err
		}
		c.lastOK = ok
		c.statusFlags = ok.statusFlags
		return nil
	}

	return c.reconnect()
}

func (c *Connection) reconnect() error {
	replacement, err := dialAndHandshake(c.opts)
	if err != nil {
		c.poisoned()
		return err
	}
	_ = c.tr.close()
	c.tr = replacement.tr
	c.codec = replacement.codec
	c.capabilities = replacement.capabilities
	c.statusFlags = replacement.statusFlags
	c.connectionID = replacement.connectionID
	c.handshake = replacement.handshake
	c.serverVersion = replacement.serverVersion
	c.maxAllowedPacket = replacement.maxAllowedPacket
	c.stmtCache = newStmtCache(c.opts.StmtCacheSize)
	c.connected = true
	return nil
}

// Close implements spec §4.7: drain the statement cache, send
// COM_QUIT, drop the transport. All errors are silently ignored.
func (c *Connection) Close() error {
	for _, stmt := range c.stmtCache.drain() {
		_ = c.closeStatementHandle(stmt)
	}
	_ = writeComQuit(c.codec)
	_ = c.tr.close()
	c.connected = false
	return nil
}

// ConnectionID returns the server-assigned session id from the
// handshake.
func (c *Connection) ConnectionID() uint32 { return c.connectionID }

// ServerVersion returns the raw server_version string from the
// handshake.
func (c *Connection) ServerVersion() string { return c.serverVersion }

func (c *Connection) String() string {
	return fmt.Sprintf("mysql.Connection{id=%d, server=%q}", c.connectionID, c.serverVersion)
}
