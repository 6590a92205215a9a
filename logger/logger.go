// Package logger provides the structured logger every Connection logs
// through: one logrus instance with a compact timestamp+caller format.
package logger

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// base is the package-level logger used when a Connection is not given
// its own *logrus.Entry via Options.Logger.
var base = newLogger()

type callerFormatter struct{}

func (callerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	msg := fmt.Sprintf("[%s] [%s] (%s) %s\n",
		entry.Time.Format("15:04:05.000"), level, caller(), entry.Message)
	return []byte(msg), nil
}

// caller walks past the logrus and logger-package frames to find the
// first frame that belongs to the caller.
func caller() string {
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/sirupsen/logrus/") || strings.HasSuffix(file, "logger/logger.go") {
			continue
		}
		fn := runtime.FuncForPC(pc)
		name := "unknown"
		if fn != nil {
			name = fn.Name()
		}
		return fmt.Sprintf("%s:%s:%d", shortFile(file), name, line)
	}
	return "unknown:unknown:0"
}

func shortFile(file string) string {
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		return file[i+1:]
	}
	return file
}

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(callerFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// New returns a fresh *logrus.Entry scoped with the given fields,
// suitable for Options.Logger so every line a Connection emits carries
// its connection id / peer address.
func New(fields logrus.Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// SetLevel adjusts the package-level logger's verbosity.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

// Default returns the package-level logger entry, used when a
// Connection was not configured with its own.
func Default() *logrus.Entry {
	return logrus.NewEntry(base)
}
