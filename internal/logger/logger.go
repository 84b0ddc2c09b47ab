package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

const (
	// FieldPackage is the name of the package that emits the log entry.
	FieldPackage = "package"

	// FieldFunction is the name of the function that emits the log entry.
	FieldFunction = "function"
)

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Log is a structured leveled logger.
//
// Error and Errorf take the error as the first argument,
// so the error is always attached to the entry as a field.
type Log interface {
	WithField(key string, value interface{}) Log
	WithFields(fields Fields) Log

	Trace(msg string)
	Debug(msg string)
	Info(msg string)
	Infof(format string, args ...interface{})
	Warn(msg string)
	Error(err error, msg string)
	Errorf(err error, format string, args ...interface{})
}

// Config
type Config struct {
	Level  string
	Format string
}

type log struct {
	entry *logrus.Entry
}

// New creates a logrus backed logger that writes to stderr.
func New(conf Config) (Log, error) {
	return NewWithWriter(conf, os.Stderr)
}

// NewWithWriter creates a logrus backed logger that writes to w.
func NewWithWriter(conf Config, w io.Writer) (Log, error) {
	l := logrus.New()
	l.SetOutput(w)

	level := logrus.InfoLevel
	if conf.Level != "" {
		lvl, err := logrus.ParseLevel(conf.Level)
		if err != nil {
			return nil, err
		}
		level = lvl
	}
	l.SetLevel(level)

	switch conf.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &log{entry: logrus.NewEntry(l)}, nil
}

// NewNullLogger creates a discarding logger and a hook
// that records every entry, for use in tests.
func NewNullLogger() (Log, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	l.SetLevel(logrus.TraceLevel)
	return &log{entry: logrus.NewEntry(l)}, hook
}

func (l *log) WithField(key string, value interface{}) Log {
	return &log{entry: l.entry.WithField(key, value)}
}

func (l *log) WithFields(fields Fields) Log {
	return &log{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *log) Trace(msg string) {
	l.entry.Trace(msg)
}

func (l *log) Debug(msg string) {
	l.entry.Debug(msg)
}

func (l *log) Info(msg string) {
	l.entry.Info(msg)
}

func (l *log) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *log) Warn(msg string) {
	l.entry.Warn(msg)
}

func (l *log) Error(err error, msg string) {
	l.entry.WithError(err).Error(msg)
}

func (l *log) Errorf(err error, format string, args ...interface{}) {
	l.entry.WithError(err).Errorf(format, args...)
}
