// Package logger is the leveled logger used across steam-mirror.
//
// Messages are printf-style. A logger carries optional prefixes and
// metadata which are printed with every message.
package logger

import (
	"os"
	"strings"
)

// LogLevel defines the level of logging
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// LevelEnv is the environment variable GetLevelFromEnv reads.
const LevelEnv = "STEAM_MIRROR_LOG_LEVEL"

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "NONE"
	}
}

// ParseLevel converts a level name (case-insensitive) into a LogLevel. The
// second result is false for unknown names.
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "none", "off":
		return LevelNone, true
	}
	return LevelInfo, false
}

// GetLevelFromEnv will look at the environment var `STEAM_MIRROR_LOG_LEVEL` and convert it into the appropriate LogLevel
func GetLevelFromEnv() LogLevel {
	level, _ := ParseLevel(os.Getenv(LevelEnv))
	return level
}

// Logger is an interface for logging
type Logger interface {
	// With will return a new logger using metadata as the base context
	With(metadata map[string]interface{}) Logger
	// WithPrefix will return a new logger with a prefix prepended to the message
	WithPrefix(prefix string) Logger
	// Trace level logging
	Trace(msg string, args ...interface{})
	// Debug level logging
	Debug(msg string, args ...interface{})
	// Info level logging
	Info(msg string, args ...interface{})
	// Warning level logging
	Warn(msg string, args ...interface{})
	// Error level logging
	Error(msg string, args ...interface{})
	// Fatal level logging and exit with code 1
	Fatal(msg string, args ...interface{})
	// IsLevelEnabled returns true if the given log level is enabled
	IsLevelEnabled(level LogLevel) bool
}
