// Package logger provides structured logging utilities
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds logger configuration
type Config struct {
	Level      string `yaml:"level" mapstructure:"level"`             // debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"`           // text or json
	Output     string `yaml:"output" mapstructure:"output"`           // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format" mapstructure:"time_format"` // RFC3339, RFC3339Nano, etc
}

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{TimestampFormat: time.RFC3339, FullTimestamp: true})
	return l
}

// Init initializes the logger with configuration
func Init(cfg Config) {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	std.SetLevel(level)

	timeFormat := time.RFC3339
	if strings.TrimSpace(cfg.TimeFormat) != "" {
		timeFormat = strings.TrimSpace(cfg.TimeFormat)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		std.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	default:
		std.SetFormatter(&logrus.TextFormatter{TimestampFormat: timeFormat, FullTimestamp: true})
	}

	// CLI output goes to stdout, so logs default to stderr
	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "", "stderr":
		std.SetOutput(os.Stderr)
	case "stdout":
		std.SetOutput(os.Stdout)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			std.SetOutput(os.Stderr)
			std.Warnf("logger: failed to open log file %s: %v", cfg.Output, err)
		} else {
			std.SetOutput(f)
		}
	}
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Debug logs debug message (only shown when level=debug)
func Debug(msg string) {
	std.Debug(msg)
}

// Debugf logs formatted debug message
func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Info logs info message
func Info(msg string) {
	std.Info(msg)
}

// Infof logs formatted info message
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warn logs warning message
func Warn(msg string) {
	std.Warn(msg)
}

// Warnf logs formatted warning message
func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Error logs error message
func Error(msg string) {
	std.Error(msg)
}

// Errorf logs formatted error message
func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

// WithFields returns a log message with structured fields
func WithFields(fields map[string]interface{}) *FieldLogger {
	return &FieldLogger{entry: std.WithFields(logrus.Fields(fields))}
}

// FieldLogger allows structured logging with fields
type FieldLogger struct {
	entry *logrus.Entry
}

// WithField adds one more field
func (l *FieldLogger) WithField(key string, value interface{}) *FieldLogger {
	return &FieldLogger{entry: l.entry.WithField(key, value)}
}

// WithError attaches err under the "error" field
func (l *FieldLogger) WithError(err error) *FieldLogger {
	return &FieldLogger{entry: l.entry.WithError(err)}
}

func (l *FieldLogger) Debug(msg string) {
	l.entry.Debug(msg)
}

func (l *FieldLogger) Info(msg string) {
	l.entry.Info(msg)
}

func (l *FieldLogger) Warn(msg string) {
	l.entry.Warn(msg)
}

func (l *FieldLogger) Error(msg string) {
	l.entry.Error(msg)
}

// Protocol-specific logging with structured fields

// HTTP logs one exchange with the comment service
func HTTP(method, path string, status, latencyMs int) {
	WithFields(map[string]interface{}{
		"protocol": "http",
		"method":   method,
		"path":     path,
		"status":   status,
		"latency":  latencyMs,
	}).Debug(fmt.Sprintf("HTTP %s %s %d - %dms", method, path, status, latencyMs))
}

// WebSocket logs live channel lifecycle events
func WebSocket(channel, event string) {
	WithFields(map[string]interface{}{
		"protocol": "websocket",
		"channel":  channel,
		"event":    event,
	}).Info(fmt.Sprintf("WebSocket [%s] %s", channel, event))
}

// Context-aware logging (for request tracing)
type contextKey string

const requestIDKey contextKey = "request_id"

// ContextWithRequestID stores a request ID for later log correlation
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
