// Package env reads .env files and resolves settings shared by the
// steam-mirror commands.
package env

import (
	"io"
	"os"
	"strings"

	"github.com/agentuity/steam-mirror/logger"
	"github.com/spf13/cobra"
)

type EnvLine struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// ParseEnvFile parses an environment file and returns a list of EnvLine structs.
// A missing file is not an error; it yields no lines.
func ParseEnvFile(filename string) ([]EnvLine, error) {
	buf, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return []EnvLine{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseEnvBuffer(buf)
}

// ParseEnvBuffer parses the lines of an environment file. Blank lines and
// # comments are skipped, an optional "export " is dropped and matching
// outer quotes are removed. ${NAME} and ${NAME:-default} refer to keys of
// the same file, ${env:NAME} to the process environment. A reference that
// cannot be resolved is kept as written.
func ParseEnvBuffer(buf []byte) ([]EnvLine, error) {
	envs := make([]EnvLine, 0)
	values := make(map[string]string)
	for _, line := range strings.Split(string(buf), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		env := ProcessEnvLine(strings.TrimPrefix(line, "export "))
		if env.Key == "" {
			continue
		}
		env.Val = interpolate(env.Val, values)
		values[env.Key] = env.Val
		envs = append(envs, env)
	}
	// Resolve references to keys defined further down.
	for i := range envs {
		envs[i].Val = interpolate(envs[i].Val, values)
	}
	return envs, nil
}

// ProcessEnvLine splits a KEY=value line.
func ProcessEnvLine(env string) EnvLine {
	key, val, ok := strings.Cut(env, "=")
	if !ok {
		return EnvLine{Key: strings.TrimSpace(env)}
	}
	return EnvLine{Key: strings.TrimSpace(key), Val: dequote(strings.TrimSpace(val))}
}

func dequote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func interpolate(input string, values map[string]string) string {
	var out strings.Builder
	for {
		start := strings.Index(input, "${")
		if start < 0 {
			out.WriteString(input)
			return out.String()
		}
		end := strings.IndexByte(input[start:], '}')
		if end < 0 {
			out.WriteString(input)
			return out.String()
		}
		end += start
		out.WriteString(input[:start])
		out.WriteString(resolve(input[start:end+1], input[start+2:end], values))
		input = input[end+1:]
	}
}

func resolve(ref, inner string, values map[string]string) string {
	name, def, _ := strings.Cut(inner, ":-")
	if name == "" {
		return ref
	}
	var val string
	if osName, ok := strings.CutPrefix(name, "env:"); ok {
		val = os.Getenv(osName)
	} else {
		val = values[name]
	}
	switch {
	case val != "":
		return val
	case def != "":
		return def
	default:
		return ref
	}
}

// ToMap converts parsed lines into a map. Later lines win.
func ToMap(envs []EnvLine) map[string]string {
	out := make(map[string]string, len(envs))
	for _, env := range envs {
		out[env.Key] = env.Val
	}
	return out
}

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok {
		return val
	}
	return defaultValue
}

// LogLevel resolves the --log-level flag, then STEAM_MIRROR_LOG_LEVEL,
// defaulting to info.
func LogLevel(cmd *cobra.Command) logger.LogLevel {
	level, _ := logger.ParseLevel(FlagOrEnv(cmd, "log-level", logger.LevelEnv, "info"))
	return level
}

// NewLogger returns a logger writing to w at the level chosen by LogLevel.
func NewLogger(cmd *cobra.Command, w io.Writer) logger.Logger {
	return logger.NewWriterLogger(w, LogLevel(cmd))
}
