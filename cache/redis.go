package cache

import (
	"context"
	"iter"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// redisSequenceMarker is stored at the entry key of a sequence entry.
	redisSequenceMarker = "sequence"
	redisPageSize       = 100
)

// Redis stores the entries of one prefix in Redis. A scalar entry is a
// msgpack string at <prefix>:<key> (or <prefix> in singleton mode). A
// sequence entry keeps its items in the list <entry>:items and a marker at
// the entry key, which is only written on commit under CommitOnComplete.
type Redis struct {
	modeState
	client *redis.Client
	prefix string
	cfg    config
}

var _ Backend = (*Redis)(nil)

// NewRedis returns a Backend for prefix. The caller owns the client
// lifecycle; Close is a no-op on the client.
func NewRedis(client *redis.Client, prefix string, opts ...Option) *Redis {
	return &Redis{client: client, prefix: prefix, cfg: applyOptions(opts)}
}

func (c *Redis) Configure(mode Mode) error {
	return c.set(mode, nil)
}

func (c *Redis) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *Redis) entryKey(key string) (string, error) {
	if err := c.check(); err != nil {
		return "", err
	}
	if c.mode == ModeSingleton {
		return c.prefix, nil
	}
	return c.prefix + ":" + key, nil
}

func itemsKey(entry string) string { return entry + ":items" }

func (c *Redis) Location(key string) string {
	k, err := c.entryKey(key)
	if err != nil {
		return "redis:" + c.prefix
	}
	return "redis:" + k
}

func (c *Redis) Contains(ctx context.Context, key string) (bool, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return false, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	n, err := c.client.Exists(qctx, k).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Redis) Get(ctx context.Context, key string) (any, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return nil, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	data, err := c.client.Get(qctx, k).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(ErrNotFound, "%s", c.Location(key))
	}
	if err != nil {
		return nil, err
	}
	return decodeStored(data, c.Location(key))
}

func (c *Redis) Set(ctx context.Context, key string, val any) error {
	k, err := c.entryKey(key)
	if err != nil {
		return err
	}
	data, err := serializer.MarshalValue(val)
	if err != nil {
		return err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	pipe := c.client.TxPipeline()
	pipe.Del(qctx, itemsKey(k))
	pipe.Set(qctx, k, data, 0)
	_, err = pipe.Exec(qctx)
	return err
}

func (c *Redis) SupportsSequences() bool { return true }

func (c *Redis) Iterate(ctx context.Context, key string) iter.Seq2[any, error] {
	k, err := c.entryKey(key)
	if err != nil {
		return errSeq(err)
	}
	return func(yield func(any, error) bool) {
		for start := int64(0); ; start += redisPageSize {
			page, err := c.page(ctx, itemsKey(k), start)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, data := range page {
				v, err := decodeStored([]byte(data), c.Location(key))
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(v, nil) {
					return
				}
			}
			if len(page) < redisPageSize {
				return
			}
		}
	}
}

func (c *Redis) page(ctx context.Context, list string, start int64) ([]string, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	return c.client.LRange(qctx, list, start, start+redisPageSize-1).Result()
}

func (c *Redis) OpenSequence(ctx context.Context, key string) (SequenceWriter, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return nil, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	pipe := c.client.TxPipeline()
	pipe.Del(qctx, itemsKey(k))
	if c.cfg.commit == CommitEachItem {
		pipe.Set(qctx, k, redisSequenceMarker, 0)
	} else {
		pipe.Del(qctx, k)
	}
	if _, err := pipe.Exec(qctx); err != nil {
		return nil, err
	}
	return &redisSequence{c: c, key: k}, nil
}

func (c *Redis) Remove(ctx context.Context, key string) (bool, error) {
	k, err := c.entryKey(key)
	if err != nil {
		return false, err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	n, err := c.client.Del(qctx, k, itemsKey(k)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Redis) Close() error { return nil }

type redisSequence struct {
	c   *Redis
	key string
}

func (s *redisSequence) Append(ctx context.Context, item any) error {
	data, err := serializer.MarshalValue(item)
	if err != nil {
		return err
	}
	qctx, cancel := s.c.queryCtx(ctx)
	defer cancel()
	return s.c.client.RPush(qctx, itemsKey(s.key), data).Err()
}

func (s *redisSequence) Commit(ctx context.Context) error {
	qctx, cancel := s.c.queryCtx(ctx)
	defer cancel()
	return s.c.client.Set(qctx, s.key, redisSequenceMarker, 0).Err()
}

func (s *redisSequence) Close() error { return nil }
