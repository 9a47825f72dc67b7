// Package common also provides structured, context-aware logging helpers
// built on top of the package-level Logger.
package common

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel is a minimum-severity setting for a configured logger.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// LoggerConfig configures a freshly created logger.
type LoggerConfig struct {
	Level      LogLevel
	Format     string // "json" or "text"
	Service    string
	AddCaller  bool
	TimeFormat string
}

// DefaultLoggerConfig returns sane defaults for interactive use.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      LogLevelInfo,
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds a logrus.Logger from a LoggerConfig.
func NewLogger(config LoggerConfig) *logrus.Logger {
	logger := logrus.New()

	switch config.Level {
	case LogLevelDebug:
		logger.SetLevel(logrus.DebugLevel)
	case LogLevelWarn:
		logger.SetLevel(logrus.WarnLevel)
	case LogLevelError:
		logger.SetLevel(logrus.ErrorLevel)
	case LogLevelFatal:
		logger.SetLevel(logrus.FatalLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: config.TimeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: config.TimeFormat,
			FullTimestamp:   true,
		})
	}

	logger.SetReportCaller(config.AddCaller)
	logger.SetOutput(&OutputSplitter{})
	return logger
}

// ContextLogger carries a fixed set of fields across a chain of log calls.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger wraps logger (or the package default) with base fields.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	base := make(logrus.Fields, len(fields))
	for k, v := range fields {
		base[k] = v
	}
	return &ContextLogger{logger: logger, fields: base}
}

// WithField returns a copy of cl carrying one additional field.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	return cl.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a copy of cl carrying additional fields.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	merged := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: merged}
}

// WithError attaches an error field.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

// WithContext pulls well-known trace identifiers out of ctx, if present.
func (cl *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	fields := map[string]interface{}{}
	if runID := ctx.Value(ctxKeyRunID); runID != nil {
		fields["run_id"] = runID
	}
	if trajName := ctx.Value(ctxKeyTrajectory); trajName != nil {
		fields["trajectory"] = trajName
	}
	return cl.WithFields(fields)
}

type ctxKey int

const (
	ctxKeyRunID ctxKey = iota
	ctxKeyTrajectory
)

func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }
func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}
func (cl *ContextLogger) Info(msg string) { cl.logger.WithFields(cl.fields).Info(msg) }
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}
func (cl *ContextLogger) Warn(msg string) { cl.logger.WithFields(cl.fields).Warn(msg) }
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Warnf(format, args...)
}
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// ServiceLogger returns a ContextLogger pre-tagged with a component name,
// used by storage/environment/storagewrap to identify their log lines.
func ServiceLogger(component string) *ContextLogger {
	return NewContextLogger(Logger, map[string]interface{}{"component": component})
}

// LogOperation logs the start, duration and outcome of fn.
func LogOperation(logger *ContextLogger, operation string, fn func() error) error {
	start := time.Now()
	logger.WithField("operation", operation).Debug("operation started")

	err := fn()

	entry := logger.WithFields(map[string]interface{}{
		"operation":   operation,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("operation failed")
		return err
	}
	entry.Debug("operation completed")
	return nil
}

// LogPanic recovers a panic and logs it with a stack trace. Callers use
// `defer common.LogPanic(logger)` at the top of a worker goroutine so a
// single run's panic doesn't take the whole process down.
func LogPanic(logger *ContextLogger) {
	if r := recover(); r != nil {
		buf := make([]byte, 4096)
		n := runtime.Stack(buf, false)
		logger.WithFields(map[string]interface{}{
			"panic":      fmt.Sprintf("%v", r),
			"stacktrace": string(buf[:n]),
		}).Error("panic recovered")
	}
}
