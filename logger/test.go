package logger

import (
	"fmt"
	"sync"
)

type TestLogEntry struct {
	Severity  string
	Message   string
	Arguments []interface{}
}

// Formatted returns the message with its arguments applied.
func (e TestLogEntry) Formatted() string {
	return fmt.Sprintf(e.Message, e.Arguments...)
}

type testLogRecord struct {
	mu   sync.Mutex
	logs []TestLogEntry
}

// TestLogger records every message. Loggers derived with With or WithPrefix
// record into the same log as their parent.
type TestLogger struct {
	metadata map[string]interface{}
	record   *testLogRecord
}

var _ Logger = (*TestLogger)(nil)

// NewTestLogger returns a new Logger instance useful for testing
func NewTestLogger() *TestLogger {
	return &TestLogger{record: &testLogRecord{}}
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *TestLogger) WithPrefix(prefix string) Logger {
	return c
}

func (c *TestLogger) With(metadata map[string]interface{}) Logger {
	kv := make(map[string]interface{}, len(c.metadata)+len(metadata))
	for k, v := range c.metadata {
		kv[k] = v
	}
	for k, v := range metadata {
		kv[k] = v
	}
	return &TestLogger{metadata: kv, record: c.record}
}

func (c *TestLogger) Log(level string, msg string, args ...interface{}) {
	c.record.mu.Lock()
	defer c.record.mu.Unlock()
	c.record.logs = append(c.record.logs, TestLogEntry{level, msg, args})
}

// Logs returns a copy of everything logged so far.
func (c *TestLogger) Logs() []TestLogEntry {
	c.record.mu.Lock()
	defer c.record.mu.Unlock()
	out := make([]TestLogEntry, len(c.record.logs))
	copy(out, c.record.logs)
	return out
}

// Messages returns the formatted messages logged at severity.
func (c *TestLogger) Messages(severity string) []string {
	var out []string
	for _, entry := range c.Logs() {
		if entry.Severity == severity {
			out = append(out, entry.Formatted())
		}
	}
	return out
}

func (c *TestLogger) IsLevelEnabled(LogLevel) bool { return true }

func (c *TestLogger) Trace(msg string, args ...interface{}) { c.Log("TRACE", msg, args...) }
func (c *TestLogger) Debug(msg string, args ...interface{}) { c.Log("DEBUG", msg, args...) }
func (c *TestLogger) Info(msg string, args ...interface{})  { c.Log("INFO", msg, args...) }
func (c *TestLogger) Warn(msg string, args ...interface{})  { c.Log("WARNING", msg, args...) }
func (c *TestLogger) Error(msg string, args ...interface{}) { c.Log("ERROR", msg, args...) }

// Fatal records the message and panics instead of exiting, so tests can
// recover from it.
func (c *TestLogger) Fatal(msg string, args ...interface{}) {
	c.Log("FATAL", msg, args...)
	panic(fmt.Sprintf(msg, args...))
}
