// Package logger provides basic logging functionalities backed by zap.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines a simple interface for logging.
// *zap.SugaredLogger satisfies it.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

var _ Logger = (*zap.SugaredLogger)(nil)

// globalLevel controls the level of the package-level logger.
var globalLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Global std logger instance, initialized with default "info" settings.
var std = newZap(globalLevel)

// ParseLevel converts a level name ("debug", "info", "warn", "error", "fatal")
// to a zapcore.Level. Unknown names fall back to info.
func ParseLevel(logLevel string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(logLevel)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func newZap(level zap.AtomicLevel) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core, zap.AddCaller())
}

// New creates a structured *zap.Logger for components that take one.
func New(logLevel string) *zap.Logger {
	return newZap(zap.NewAtomicLevelAt(ParseLevel(logLevel)))
}

// NewLogger creates and configures a new Logger instance.
// loglevel could be "debug", "info", "warn", "error", "fatal"
func NewLogger(logLevel string) Logger {
	return New(logLevel).Sugar()
}

// SetGlobalLogLevel reconfigures the global std logger's level.
func SetGlobalLogLevel(logLevel string) {
	globalLevel.SetLevel(ParseLevel(logLevel))
}

// Zap returns the global structured logger.
func Zap() *zap.Logger {
	return std
}

// Sync flushes the global logger.
func Sync() {
	if err := std.Sync(); err != nil && !isStderrSyncError(err) {
		fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
	}
}

// isStderrSyncError reports the harmless EINVAL returned when syncing a terminal.
func isStderrSyncError(err error) bool {
	return strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl")
}

func sugar() *zap.SugaredLogger {
	return std.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Debug logs a debug message using the global std logger.
func Debug(args ...interface{}) {
	sugar().Debug(args...)
}

// Debugf logs a debug message with formatting.
func Debugf(format string, args ...interface{}) {
	sugar().Debugf(format, args...)
}

// Info logs an informational message using the global std logger.
func Info(args ...interface{}) {
	sugar().Info(args...)
}

// Infof logs an informational message with formatting.
func Infof(format string, args ...interface{}) {
	sugar().Infof(format, args...)
}

// Warn logs a warning message.
func Warn(args ...interface{}) {
	sugar().Warn(args...)
}

// Warnf logs a warning message with formatting.
func Warnf(format string, args ...interface{}) {
	sugar().Warnf(format, args...)
}

// Error logs an error message.
func Error(args ...interface{}) {
	sugar().Error(args...)
}

// Errorf logs an error message with formatting.
func Errorf(format string, args ...interface{}) {
	sugar().Errorf(format, args...)
}

// Fatal logs a fatal error message and exits.
func Fatal(args ...interface{}) {
	sugar().Fatal(args...)
}

// Fatalf logs a fatal error message with formatting and exits.
func Fatalf(format string, args ...interface{}) {
	sugar().Fatalf(format, args...)
}
