// Package config loads the steam-mirror settings from the environment and
// an optional .env file.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/agentuity/steam-mirror/cache"
	dotenv "github.com/agentuity/steam-mirror/env"
	"github.com/agentuity/steam-mirror/serializer"
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
)

// Storage backends.
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	APIKey string `env:"STEAM_API_KEY,required,notEmpty"`
	MyID   int64  `env:"STEAM_MY_ID,required"`

	CacheDir     string             `env:"STEAM_MIRROR_CACHE_DIR" envDefault:"cache"`
	Backend      string             `env:"STEAM_MIRROR_BACKEND" envDefault:"files"`
	SQLitePath   string             `env:"STEAM_MIRROR_SQLITE_PATH"`
	RedisURL     string             `env:"STEAM_MIRROR_REDIS_URL"`
	CommitPolicy cache.CommitPolicy `env:"STEAM_MIRROR_COMMIT_POLICY" envDefault:"on-complete"`

	// OneFile lists the prefixes the files backend keeps in a single
	// document instead of one file per key. Sequences cannot be listed.
	OneFile       []string `env:"STEAM_MIRROR_ONEFILE" envSeparator:","`
	OneFileFormat string   `env:"STEAM_MIRROR_ONEFILE_FORMAT"`
	// KeyHash names entries by the xxhash of their key.
	KeyHash bool `env:"STEAM_MIRROR_KEY_HASH"`

	ConnectTimeout time.Duration `env:"STEAM_MIRROR_CONNECT_TIMEOUT" envDefault:"5s"`
	ReadTimeout    time.Duration `env:"STEAM_MIRROR_READ_TIMEOUT" envDefault:"10s"`
	RetryBackoff   time.Duration `env:"STEAM_MIRROR_RETRY_BACKOFF" envDefault:"3s"`
	RetryAttempts  uint          `env:"STEAM_MIRROR_RETRY_ATTEMPTS" envDefault:"30"`

	StoreURL string `env:"STEAM_MIRROR_STORE_URL" envDefault:"https://store.steampowered.com"`
	APIURL   string `env:"STEAM_MIRROR_API_URL" envDefault:"https://api.steampowered.com"`
	StopFile string `env:"STEAM_MIRROR_STOP_FILE" envDefault:"stop"`

	// NameCorrections is a YAML file of app name to app id overrides.
	NameCorrections string `env:"STEAM_MIRROR_NAME_CORRECTIONS"`
}

// Load reads envFile (a missing file is fine) and decodes the settings.
// Process environment variables take precedence over the file.
func Load(envFile string) (*Config, error) {
	environment := map[string]string{}
	if envFile != "" {
		lines, err := dotenv.ParseEnvFile(envFile)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", envFile)
		}
		environment = dotenv.ToMap(lines)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environment[k] = v
		}
	}
	return Parse(environment)
}

// Parse decodes the settings from environment alone.
func Parse(environment map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendFiles:
	case BackendSQLite:
		if c.SQLitePath == "" {
			c.SQLitePath = filepath.Join(c.CacheDir, "cache.db")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("STEAM_MIRROR_REDIS_URL is required for the redis backend")
		}
	default:
		return errors.Newf("unknown STEAM_MIRROR_BACKEND %q", c.Backend)
	}
	c.OneFile = slices.DeleteFunc(c.OneFile, func(prefix string) bool {
		return strings.TrimSpace(prefix) == ""
	})
	if len(c.OneFile) > 0 && c.Backend != BackendFiles {
		return errors.Newf("STEAM_MIRROR_ONEFILE needs the files backend, not %s", c.Backend)
	}
	if c.OneFileFormat != "" {
		if _, err := serializer.ByName(c.OneFileFormat); err != nil {
			return errors.Wrap(err, "STEAM_MIRROR_ONEFILE_FORMAT")
		}
	}
	if c.RetryAttempts == 0 {
		return errors.New("STEAM_MIRROR_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}
