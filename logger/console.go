package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const isWindows = runtime.GOOS == "windows"

const (
	Reset       = "\033[0m"
	Red         = "\033[31m"
	Green       = "\033[32m"
	Magenta     = "\033[35m"
	BlueBold    = "\033[34;1m"
	MagentaBold = "\033[35;1m"
	RedBold     = "\033[31;1m"
	YellowBold  = "\033[33;1m"
	WhiteBold   = "\033[37;1m"
	CyanBold    = "\033[36;1m"
	Gray        = "\033[1;90m"
	Purple      = "\u001b[38;5;200m"
)

// wantsColor reports whether w is a terminal that understands ANSI colors.
func wantsColor(w io.Writer) bool {
	if isWindows || os.Getenv("TERM") == "dumb" || os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type levelStyle struct {
	level   string
	message string
}

var styles = map[LogLevel]levelStyle{
	LevelTrace: {CyanBold, Gray},
	LevelDebug: {BlueBold, Green},
	LevelInfo:  {YellowBold, WhiteBold},
	LevelWarn:  {MagentaBold, Magenta},
	LevelError: {RedBold, Red},
}

type consoleLogger struct {
	out      io.Writer
	mu       *sync.Mutex
	colored  bool
	prefixes []string
	metadata map[string]interface{}
	logLevel LogLevel
}

var _ Logger = (*consoleLogger)(nil)

func (c *consoleLogger) color(val string) string {
	if !c.colored {
		return ""
	}
	return val
}

func (c *consoleLogger) clone() *consoleLogger {
	metadata := make(map[string]interface{}, len(c.metadata))
	for k, v := range c.metadata {
		metadata[k] = v
	}
	return &consoleLogger{
		out:      c.out,
		mu:       c.mu,
		colored:  c.colored,
		prefixes: slices.Clone(c.prefixes),
		metadata: metadata,
		logLevel: c.logLevel,
	}
}

// WithPrefix will return a new logger with a prefix prepended to the message
func (c *consoleLogger) WithPrefix(prefix string) Logger {
	l := c.clone()
	if !slices.Contains(l.prefixes, prefix) {
		l.prefixes = append(l.prefixes, prefix)
	}
	return l
}

func (c *consoleLogger) With(metadata map[string]interface{}) Logger {
	l := c.clone()
	for k, v := range metadata {
		l.metadata[k] = v
	}
	return l
}

func (c *consoleLogger) IsLevelEnabled(level LogLevel) bool {
	return level >= c.logLevel && level < LevelNone
}

func (c *consoleLogger) log(level LogLevel, msg string, args ...interface{}) {
	if !c.IsLevelEnabled(level) {
		return
	}
	style := styles[level]
	var prefix, suffix string
	if len(c.prefixes) > 0 {
		prefix = c.color(Purple) + strings.Join(c.prefixes, " ") + c.color(Reset) + " "
	}
	if len(c.metadata) > 0 {
		buf, _ := json.Marshal(c.metadata)
		suffix = " " + c.color(Gray) + string(buf) + c.color(Reset)
	}
	name := level.String()
	levelText := c.color(style.level) + fmt.Sprintf("[%s]%s", name, strings.Repeat(" ", max(0, 5-len(name)))) + c.color(Reset)
	message := c.color(style.message) + fmt.Sprintf(msg, args...) + c.color(Reset)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s%s%s\n", levelText, prefix, message, suffix)
}

func (c *consoleLogger) Trace(msg string, args ...interface{}) { c.log(LevelTrace, msg, args...) }
func (c *consoleLogger) Debug(msg string, args ...interface{}) { c.log(LevelDebug, msg, args...) }
func (c *consoleLogger) Info(msg string, args ...interface{})  { c.log(LevelInfo, msg, args...) }
func (c *consoleLogger) Warn(msg string, args ...interface{})  { c.log(LevelWarn, msg, args...) }
func (c *consoleLogger) Error(msg string, args ...interface{}) { c.log(LevelError, msg, args...) }

func (c *consoleLogger) Fatal(msg string, args ...interface{}) {
	c.log(LevelError, msg, args...)
	os.Exit(1)
}

// NewConsoleLogger returns a new Logger instance which will log to stderr.
// Without an explicit level the level comes from GetLevelFromEnv.
func NewConsoleLogger(levels ...LogLevel) Logger {
	level := GetLevelFromEnv()
	if len(levels) > 0 {
		level = levels[0]
	}
	return NewWriterLogger(os.Stderr, level)
}

// NewWriterLogger returns a Logger writing to w. Colors are only used when
// w is a terminal.
func NewWriterLogger(w io.Writer, level LogLevel) Logger {
	return &consoleLogger{
		out:      w,
		mu:       &sync.Mutex{},
		colored:  wantsColor(w),
		logLevel: level,
	}
}

// Discard returns a Logger that drops every message.
func Discard() Logger {
	return NewWriterLogger(io.Discard, LevelNone)
}
