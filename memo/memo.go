// Package memo wraps functions so their results persist in a cache.Backend.
//
// A wrapped call derives a key from its arguments and checks the backend.
// On a hit the stored result is replayed without invoking the function. On
// a miss the function runs and its result is stored while it is returned to
// the caller. Scalar functions and sequence-producing functions have their
// own constructors, NewScalar and NewSequence.
package memo

import (
	"context"
	"iter"
	"path/filepath"

	"github.com/agentuity/steam-mirror/cache"
	"github.com/agentuity/steam-mirror/logger"
	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
)

// ErrNoSerializer is returned when neither a Serializer nor a Backend is
// configured.
var ErrNoSerializer = errors.New("memo: no serializer configured")

// Func is a function with a single optional result. found is false when
// there is no result.
type Func[T any] func(ctx context.Context, args ...any) (v T, found bool, err error)

// SeqFunc is a function producing a finite lazy sequence.
type SeqFunc[T any] func(ctx context.Context, args ...any) iter.Seq2[T, error]

// Config describes one memoized function.
type Config[T any] struct {
	// Root is the base directory of the file layout.
	Root string
	// Prefix names the cache namespace of the function: a directory under
	// Root in keyed mode, or the file <Root>/<Prefix>.<ext> in singleton mode.
	Prefix string
	// Serializer encodes entries on disk. Required unless Backend is set.
	Serializer serializer.Serializer
	// Model converts results to and from primitives. Defaults to
	// Passthrough.
	Model Model[T]
	// Key derives the cache key. Nil selects singleton mode.
	Key KeyFunc
	// Backend overrides the file backend built from Root, Prefix and
	// Serializer.
	Backend cache.Backend
	// Logger receives hit and miss messages at debug level.
	Logger logger.Logger
	// CommitPolicy applies to the file backend built from Serializer.
	CommitPolicy cache.CommitPolicy
}

type wrapper[T any] struct {
	backend cache.Backend
	model   Model[T]
	key     KeyFunc
	log     logger.Logger
}

func newWrapper[T any](cfg Config[T]) (*wrapper[T], error) {
	backend := cfg.Backend
	if backend == nil {
		if cfg.Serializer == nil {
			return nil, errors.Wrapf(ErrNoSerializer, "prefix %q", cfg.Prefix)
		}
		if cfg.Prefix == "" {
			return nil, errors.New("memo: prefix is required")
		}
		backend = cache.NewFiles(
			filepath.Join(cfg.Root, cfg.Prefix),
			cfg.Serializer,
			cache.WithCommitPolicy(cfg.CommitPolicy),
		)
	}
	mode := cache.ModeKeyed
	if cfg.Key == nil {
		mode = cache.ModeSingleton
	}
	if err := backend.Configure(mode); err != nil {
		return nil, err
	}
	w := &wrapper[T]{
		backend: backend,
		model:   cfg.Model,
		key:     cfg.Key,
		log:     cfg.Logger,
	}
	if w.model == nil {
		w.model = Passthrough[T]{}
	}
	if w.log == nil {
		w.log = logger.Discard()
	}
	if cfg.Prefix != "" {
		w.log = w.log.WithPrefix("[" + cfg.Prefix + "]")
	}
	return w, nil
}

// Key returns the cache key for args. It is empty in singleton mode.
func (w *wrapper[T]) Key(args ...any) (string, error) {
	if w.key == nil {
		return "", nil
	}
	return w.key(args...)
}

// Cached reports whether a call with args would be served from the cache.
func (w *wrapper[T]) Cached(ctx context.Context, args ...any) (bool, error) {
	key, err := w.Key(args...)
	if err != nil {
		return false, err
	}
	return w.backend.Contains(ctx, key)
}

// Forget removes the entry for args. It reports whether one existed.
func (w *wrapper[T]) Forget(ctx context.Context, args ...any) (bool, error) {
	key, err := w.Key(args...)
	if err != nil {
		return false, err
	}
	removed, err := w.backend.Remove(ctx, key)
	if removed {
		w.log.Debug("removed %s", w.backend.Location(key))
	}
	return removed, err
}

// Backend returns the backend holding the entries.
func (w *wrapper[T]) Backend() cache.Backend {
	return w.backend
}

// Scalar is a memoized Func.
type Scalar[T any] struct {
	*wrapper[T]
	fn Func[T]
}

// NewScalar wraps fn. The backend mode is configured here, so layout errors
// surface before the first call.
func NewScalar[T any](cfg Config[T], fn Func[T]) (*Scalar[T], error) {
	w, err := newWrapper(cfg)
	if err != nil {
		return nil, err
	}
	return &Scalar[T]{wrapper: w, fn: fn}, nil
}

// Call returns the result for args, from the cache when present. Errors
// from the wrapped function are returned unchanged and nothing is stored.
func (s *Scalar[T]) Call(ctx context.Context, args ...any) (T, bool, error) {
	var zero T
	key, err := s.Key(args...)
	if err != nil {
		return zero, false, err
	}
	hit, err := s.backend.Contains(ctx, key)
	if err != nil {
		return zero, false, err
	}
	if hit {
		s.log.Debug("hit %s", s.backend.Location(key))
		raw, err := s.backend.Get(ctx, key)
		if err != nil {
			return zero, false, err
		}
		return s.model.Validate(raw)
	}

	s.log.Debug("miss %s", s.backend.Location(key))
	v, found, err := s.fn(ctx, args...)
	if err != nil {
		return zero, false, err
	}
	var raw any
	if found {
		if raw, err = s.model.Flatten(v); err != nil {
			return zero, false, err
		}
	}
	if err := s.backend.Set(ctx, key, raw); err != nil {
		return zero, false, errors.Wrapf(err, "store %s", s.backend.Location(key))
	}
	return v, found, nil
}

// Sequence is a memoized SeqFunc.
type Sequence[T any] struct {
	*wrapper[T]
	fn SeqFunc[T]
}

// NewSequence wraps fn. The backend must support sequences.
func NewSequence[T any](cfg Config[T], fn SeqFunc[T]) (*Sequence[T], error) {
	w, err := newWrapper(cfg)
	if err != nil {
		return nil, err
	}
	if !w.backend.SupportsSequences() {
		return nil, errors.Wrapf(cache.ErrNotChunked, "prefix %q", cfg.Prefix)
	}
	return &Sequence[T]{wrapper: w, fn: fn}, nil
}

// Call returns the items for args. The cache is consulted when iteration
// starts. On a hit the stored items are replayed and the wrapped function
// is never invoked. On a miss every item is stored before it is yielded;
// the entry is committed once the wrapped sequence is exhausted. An error
// ends the sequence.
func (s *Sequence[T]) Call(ctx context.Context, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		key, err := s.Key(args...)
		if err != nil {
			yield(zero, err)
			return
		}
		hit, err := s.backend.Contains(ctx, key)
		if err != nil {
			yield(zero, err)
			return
		}
		if hit {
			s.log.Debug("hit %s", s.backend.Location(key))
			s.replay(ctx, key, yield)
			return
		}
		s.log.Debug("miss %s", s.backend.Location(key))
		s.produce(ctx, key, args, yield)
	}
}

func (s *Sequence[T]) replay(ctx context.Context, key string, yield func(T, error) bool) {
	var zero T
	for raw, err := range s.backend.Iterate(ctx, key) {
		if err != nil {
			yield(zero, err)
			return
		}
		v, _, err := s.model.Validate(raw)
		if err != nil {
			yield(zero, err)
			return
		}
		if !yield(v, nil) {
			return
		}
	}
}

func (s *Sequence[T]) produce(ctx context.Context, key string, args []any, yield func(T, error) bool) {
	var zero T
	w, err := s.backend.OpenSequence(ctx, key)
	if err != nil {
		yield(zero, err)
		return
	}
	defer w.Close()

	count := 0
	for v, err := range s.fn(ctx, args...) {
		if err != nil {
			s.log.Debug("%s left uncommitted after %d items", s.backend.Location(key), count)
			yield(zero, err)
			return
		}
		raw, err := s.model.Flatten(v)
		if err == nil {
			err = w.Append(ctx, raw)
		}
		if err != nil {
			yield(zero, errors.Wrapf(err, "store %s", s.backend.Location(key)))
			return
		}
		count++
		if !yield(v, nil) {
			s.log.Debug("%s left uncommitted after %d items", s.backend.Location(key), count)
			return
		}
	}
	if err := w.Commit(ctx); err != nil {
		yield(zero, errors.Wrapf(err, "commit %s", s.backend.Location(key)))
		return
	}
	s.log.Debug("stored %d items in %s", count, s.backend.Location(key))
}
