package config

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"

	"github.com/agentuity/steam-mirror/cache"
	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Storage hands out one cache.Backend per memoized function, all stored in
// the backend chosen by the configuration.
type Storage struct {
	kind    string
	root    string
	opts    []cache.Option
	oneFile map[string]bool
	format  serializer.Serializer
	db      *sql.DB
	client  *redis.Client
}

// OpenStorage connects to the configured backend.
func (c *Config) OpenStorage(ctx context.Context) (*Storage, error) {
	s := &Storage{
		kind:    c.Backend,
		root:    c.CacheDir,
		opts:    []cache.Option{cache.WithCommitPolicy(c.CommitPolicy)},
		oneFile: make(map[string]bool, len(c.OneFile)),
	}
	for _, prefix := range c.OneFile {
		s.oneFile[strings.TrimSpace(prefix)] = true
	}
	if c.OneFileFormat != "" {
		format, err := serializer.ByName(c.OneFileFormat)
		if err != nil {
			return nil, err
		}
		s.format = format
	}
	switch c.Backend {
	case BackendSQLite:
		db, err := cache.OpenSQLite(ctx, c.SQLitePath)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", c.SQLitePath)
		}
		s.db = db
	case BackendRedis:
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		opts.DialTimeout = c.ConnectTimeout
		opts.ReadTimeout = c.ReadTimeout
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "connect to redis")
		}
		s.client = client
		s.opts = append(s.opts, cache.WithQueryTimeout(c.ReadTimeout))
	}
	return s, nil
}

// Backend returns the backend for prefix. s is the file format used by the
// files backend; the database backends encode with msgpack regardless.
// Prefixes listed in STEAM_MIRROR_ONEFILE are kept in one document, in the
// STEAM_MIRROR_ONEFILE_FORMAT format when set.
func (s *Storage) Backend(prefix string, ser serializer.Serializer) cache.Backend {
	switch s.kind {
	case BackendSQLite:
		return cache.NewSQLite(s.db, prefix, s.opts...)
	case BackendRedis:
		return cache.NewRedis(s.client, prefix, s.opts...)
	}
	if s.oneFile[prefix] {
		if s.format != nil {
			ser = s.format
		}
		return cache.NewOneFile(filepath.Join(s.root, prefix), ser)
	}
	return cache.NewFiles(filepath.Join(s.root, prefix), ser, s.opts...)
}

func (s *Storage) Close() error {
	switch {
	case s.db != nil:
		return s.db.Close()
	case s.client != nil:
		return s.client.Close()
	}
	return nil
}
