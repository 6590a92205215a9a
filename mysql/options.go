package mysql

import (
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// TLSOptions configures the TLS upgrade performed during the handshake
// (spec.md §4.3 step 3).
type TLSOptions struct {
	RootCerts         []byte
	ClientCert        []byte
	ClientKey         []byte
	AcceptInvalidCerts bool
	ServerName        string
}

// LocalInfileHandler streams the contents of filename into sink in
// response to a server-initiated LOCAL INFILE request (spec.md §4.6).
// Implementations should write in whatever chunk size is convenient;
// the result-set reader frames writes at the wire packet boundary.
type LocalInfileHandler func(filename string, sink io.Writer) error

// Options is the immutable configuration a Connection is built from
// (spec.md §3's `opts` field, §6's external configuration surface).
// Option parsing / CLI / env surfaces are out of scope; callers build
// this struct directly or via their own parsing layer.
type Options struct {
	Host     string
	Port     int
	Socket   string
	User     string
	Password string
	DBName   string

	PreferSocket bool

	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ConnectTimeout     time.Duration
	TCPKeepAlive       time.Duration
	TCPNoDelay         bool
	BindAddress        string

	Compress bool
	TLS      *TLSOptions

	StmtCacheSize int

	Init []string

	AdditionalCapabilities uint32

	ConnectAttrs map[string]string

	LocalInfileHandler LocalInfileHandler

	// Logger receives this connection's structured log lines. A nil
	// Logger falls back to the package-level default (logger.Default()).
	Logger *logrus.Entry
}

// defaultConnectAttrs returns the base connect-attributes map (spec.md
// §6): `_client_name, _client_version, _os, _pid, _platform,
// program_name`. Caller-supplied ConnectAttrs are merged over these,
// user keys winning on conflict.
func defaultConnectAttrs() map[string]string {
	return map[string]string{
		"_client_name":    "xmysql-client-core",
		"_client_version": clientVersion,
		"_os":             goos,
		"_pid":            strconv.Itoa(os.Getpid()),
		"_platform":       goarch,
		"program_name":    programName(),
	}
}

func (o *Options) mergedConnectAttrs() map[string]string {
	merged := defaultConnectAttrs()
	for k, v := range o.ConnectAttrs {
		merged[k] = v
	}
	return merged
}

func programName() string {
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return "xmysql-client-core"
}

const clientVersion = "0.1.0"

// set by build_info.go at init time from runtime.GOOS/GOARCH so this
// file stays free of the runtime import for readability.
var goos, goarch string
