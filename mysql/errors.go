package mysql

import (
	"fmt"

	jerrors "github.com/juju/errors"
)

// ErrorKind classifies a driver error the way spec.md §7 groups them:
// I/O poisons the connection, Server does not (unless mid-handshake),
// Driver/Protocol errors are fatal to the in-progress operation and
// only a named few are recoverable before any bytes are written.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindServer
	KindProtocol
)

// IOError wraps a transport failure (socket error, timeout, unexpected
// EOF). Observing one poisons the Connection — see spec.md §5.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("mysql: i/o error during %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }
func (e *IOError) Kind() ErrorKind { return KindIO }

func newIOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return jerrors.Trace(&IOError{Op: op, Err: err})
}

// ServerError is a structured ERR packet from the server: SQLSTATE,
// numeric code, and message. It does not poison the connection unless
// it was received mid-handshake (the caller is responsible for that
// distinction, since only the handshake engine knows when it occurred).
type ServerError struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("mysql: server error %d (%s): %s", e.Code, e.SQLState, e.Message)
}
func (e *ServerError) Kind() ErrorKind { return KindServer }

// ProtocolErrorCode enumerates the driver/protocol error kinds named in
// spec.md §7. Only the three marked recoverable can occur before any
// bytes are written to the wire.
type ProtocolErrorCode int

const (
	ErrUnsupportedProtocol ProtocolErrorCode = iota
	ErrProtocol41NotSet
	ErrTlsNotSupported
	ErrUnknownAuthPlugin
	ErrUnexpectedPacket
	ErrSetupError
	ErrReadOnlyTransNotSupported
	ErrMismatchedStmtParams
	ErrNamedParamsForPositionalQuery
	ErrMissingNamedParameter
	ErrConnectTimeout
)

var protocolErrorNames = map[ProtocolErrorCode]string{
	ErrUnsupportedProtocol:           "UnsupportedProtocol",
	ErrProtocol41NotSet:              "Protocol41NotSet",
	ErrTlsNotSupported:               "TlsNotSupported",
	ErrUnknownAuthPlugin:             "UnknownAuthPlugin",
	ErrUnexpectedPacket:              "UnexpectedPacket",
	ErrSetupError:                    "SetupError",
	ErrReadOnlyTransNotSupported:     "ReadOnlyTransNotSupported",
	ErrMismatchedStmtParams:          "MismatchedStmtParams",
	ErrNamedParamsForPositionalQuery: "NamedParamsForPositionalQuery",
	ErrMissingNamedParameter:         "MissingNamedParameter",
	ErrConnectTimeout:                "ConnectTimeout",
}

// ProtocolError is a fatal driver/protocol-level error. Recoverable
// codes (MismatchedStmtParams, NamedParamsForPositionalQuery,
// MissingNamedParameter) are raised before any bytes are written and do
// not poison the connection; every other code is fatal to the session.
type ProtocolError struct {
	Code    ProtocolErrorCode
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mysql: %s: %s", protocolErrorNames[e.Code], e.Message)
}
func (e *ProtocolError) Kind() ErrorKind { return KindProtocol }

// Recoverable reports whether this error arose before any bytes were
// written to the wire (spec.md §7 propagation policy).
func (e *ProtocolError) Recoverable() bool {
	switch e.Code {
	case ErrMismatchedStmtParams, ErrNamedParamsForPositionalQuery, ErrMissingNamedParameter:
		return true
	default:
		return false
	}
}

func protoErr(code ProtocolErrorCode, format string, args ...interface{}) error {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}
