package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level orders log severities
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a LOG_LEVEL value to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides structured logging for the service
type Logger struct {
	prefix string
	level  Level
	fields []interface{}
	logger *log.Logger
}

// NewLogger creates a new logger with a prefix writing to stdout
func NewLogger(prefix string) *Logger {
	return NewLoggerWithWriter(prefix, LevelInfo, os.Stdout)
}

// NewLoggerWithWriter creates a logger with an explicit level and destination
func NewLoggerWithWriter(prefix string, level Level, w io.Writer) *Logger {
	return &Logger{
		prefix: prefix,
		level:  level,
		logger: log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	return NewLoggerWithWriter("discard", LevelError+1, io.Discard)
}

// Named returns a logger sharing destination and level under another prefix
func (l *Logger) Named(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		level:  l.level,
		fields: l.fields,
		logger: log.New(l.logger.Writer(), fmt.Sprintf("[%s] ", prefix), l.logger.Flags()),
	}
}

// With returns a child logger that always appends the given key-value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{
		prefix: l.prefix,
		level:  l.level,
		fields: fields,
		logger: l.logger,
	}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelInfo, msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelWarn, msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelError, msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logWithKV(LevelDebug, msg, keysAndValues...)
}

func (l *Logger) logWithKV(level Level, msg string, keysAndValues ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	var kv strings.Builder
	writeKV(&kv, l.fields)
	writeKV(&kv, keysAndValues)
	l.logger.Printf("[%s] %s%s", level, msg, kv.String())
}

func writeKV(b *strings.Builder, keysAndValues []interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(b, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
}
