// Package log provides structured logging on top of logrus. A package level
// logger serves most callers; components that want their own sink (tests,
// the GUI log pane) create one with NewLogger.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"salesdesk/internal/errors"

	"github.com/sirupsen/logrus"
)

var (
	isDebug atomic.Bool
	logger  = NewLogger()
)

// Field is a single structured key/value pair
type Field struct {
	Key   string
	Value interface{}
}

// F creates a Field
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

type options struct {
	out   io.Writer
	json  bool
	level logrus.Level
	file  string
}

// Option configures a Logger
type Option func(*options)

// WithOutput sets the writer log lines go to
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithJSON switches to the JSON formatter
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// WithLevel sets the minimum level by name. Unknown names keep info.
func WithLevel(level string) Option {
	return func(o *options) {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			o.level = lvl
		}
	}
}

// WithFile copies every line to the given file in addition to stdout
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// Logger is a logrus entry with a minimum level and optional file sink
type Logger struct {
	entry *logrus.Entry
	level logrus.Level
	file  *os.File
}

// NewLogger creates a logger writing text lines to stdout unless configured
// otherwise
func NewLogger(opts ...Option) *Logger {
	o := options{out: os.Stdout, level: logrus.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}

	base := logrus.New()
	// Filtering happens in Logger so SetDebug can affect every instance.
	base.SetLevel(logrus.TraceLevel)

	var file *os.File
	out := o.out
	if o.file != "" {
		if err := os.MkdirAll(filepath.Dir(o.file), 0755); err == nil {
			f, err := os.OpenFile(o.file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err == nil {
				file = f
				out = io.MultiWriter(o.out, f)
			}
		}
	}
	base.SetOutput(out)

	if o.json {
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyMsg:  "message",
				logrus.FieldKeyTime: "timestamp",
			},
		})
	} else {
		base.SetFormatter(&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return &Logger{
		entry: logrus.NewEntry(base),
		level: o.level,
		file:  file,
	}
}

// Configure replaces the package level logger
func Configure(opts ...Option) {
	logger = NewLogger(opts...)
}

// SetDebug enables debug output on every logger
func SetDebug(debug bool) {
	isDebug.Store(debug)
}

// IsDebug reports whether debug output is enabled
func IsDebug() bool {
	return isDebug.Load()
}

// Close releases the file sink, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// With returns a logger carrying the given fields
func (l *Logger) With(fields ...Field) *Logger {
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return &Logger{entry: l.entry.WithFields(data), level: l.level, file: l.file}
}

// WithContext attaches ctx to the underlying entry
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	return &Logger{entry: l.entry.WithContext(ctx), level: l.level, file: l.file}
}

// WithError returns a logger carrying the fields describing err
func (l *Logger) WithError(err error) *Logger {
	return l.With(errorFields(err)...)
}

func (l *Logger) enabled(level logrus.Level) bool {
	if level == logrus.DebugLevel && isDebug.Load() {
		return true
	}
	return level <= l.level
}

// log writes one entry. skip counts the frames between the caller of interest
// and this function.
func (l *Logger) log(skip int, level logrus.Level, msg string) {
	if !l.enabled(level) {
		return
	}
	entry := l.entry
	if _, file, line, ok := runtime.Caller(skip + 1); ok {
		entry = entry.WithField("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line))
	}
	entry.Log(level, msg)
}

func (l *Logger) Debug(args ...interface{}) { l.log(1, logrus.DebugLevel, fmt.Sprint(args...)) }
func (l *Logger) Info(args ...interface{})  { l.log(1, logrus.InfoLevel, fmt.Sprint(args...)) }
func (l *Logger) Warn(args ...interface{})  { l.log(1, logrus.WarnLevel, fmt.Sprint(args...)) }
func (l *Logger) Error(args ...interface{}) { l.log(1, logrus.ErrorLevel, fmt.Sprint(args...)) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(1, logrus.DebugLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(1, logrus.InfoLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(1, logrus.WarnLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(1, logrus.ErrorLevel, fmt.Sprintf(format, args...))
}

// Debug logs at debug level on the package logger
func Debug(args ...interface{}) { logger.log(1, logrus.DebugLevel, fmt.Sprint(args...)) }

// Info logs at info level on the package logger
func Info(args ...interface{}) { logger.log(1, logrus.InfoLevel, fmt.Sprint(args...)) }

// Warn logs at warn level on the package logger
func Warn(args ...interface{}) { logger.log(1, logrus.WarnLevel, fmt.Sprint(args...)) }

// Error logs at error level on the package logger
func Error(args ...interface{}) { logger.log(1, logrus.ErrorLevel, fmt.Sprint(args...)) }

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	logger.log(1, logrus.DebugLevel, fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	logger.log(1, logrus.InfoLevel, fmt.Sprintf(format, args...))
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	logger.log(1, logrus.WarnLevel, fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	logger.log(1, logrus.ErrorLevel, fmt.Sprintf(format, args...))
}

// LogWithFields returns the package logger carrying fields
func LogWithFields(fields ...Field) *Logger {
	return logger.With(fields...)
}

// LogWithError returns the package logger carrying the fields describing err
func LogWithError(err error) *Logger {
	return logger.WithError(err)
}

// LogError logs err with msg at error level
func LogError(err error, msg string) {
	logger.WithError(err).log(1, logrus.ErrorLevel, msg)
}

func errorFields(err error) []Field {
	if err == nil {
		return []Field{F("error", "<nil>")}
	}

	fields := []Field{
		F("error", err.Error()),
		F("error_kind", errors.KindOf(err).String()),
	}

	var fileErr *errors.FileError
	if errors.As(err, &fileErr) && fileErr.Path() != "" {
		fields = append(fields, F("path", fileErr.Path()))
	}
	var configErr *errors.ConfigError
	if errors.As(err, &configErr) && configErr.Param() != "" {
		fields = append(fields, F("param", configErr.Param()))
	}
	var runErr *errors.RunError
	if errors.As(err, &runErr) {
		if runErr.ExitCode() >= 0 {
			fields = append(fields, F("exit_code", runErr.ExitCode()))
		}
		if runErr.Engine() != "" {
			fields = append(fields, F("engine", runErr.Engine()), F("start_failure", runErr.StartFailure().String()))
		}
		if stderr := strings.TrimSpace(runErr.Stderr()); stderr != "" {
			fields = append(fields, F("stderr", stderr))
		}
	}
	var protoErr *errors.ProtocolError
	if errors.As(err, &protoErr) {
		fields = append(fields, F("line", protoErr.Line()))
	}
	return fields
}
