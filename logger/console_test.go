package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelInfo)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	log.Error("failed: %s", "boom")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"[INFO]  shown 2", "[ERROR] failed: boom"}, lines)
	assert.False(t, log.IsLevelEnabled(LevelDebug))
	assert.True(t, log.IsLevelEnabled(LevelWarn))
}

func TestWriterLoggerPrefixAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelTrace).
		WithPrefix("[reviews]").
		WithPrefix("[reviews]").
		With(map[string]interface{}{"app": 440})

	log.Warn("retrying")
	assert.Equal(t, "[WARN]  [reviews] retrying {\"app\":440}\n", buf.String())
}

func TestWriterLoggerWithDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWriterLogger(&buf, LevelInfo)
	_ = parent.With(map[string]interface{}{"k": "v"})
	parent.Info("plain")
	assert.Equal(t, "[INFO]  plain\n", buf.String())
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("nothing")
	assert.False(t, log.IsLevelEnabled(LevelError))
}
