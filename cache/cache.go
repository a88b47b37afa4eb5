package cache

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned by Get when no entry exists for the key.
	ErrNotFound = errors.New("cache: entry not found")
	// ErrModeNotSet is returned when a backend is used before Configure.
	ErrModeNotSet = errors.New("cache: key mode is not set")
	// ErrModeConflict is returned when Configure is called with a second,
	// different mode.
	ErrModeConflict = errors.New("cache: key mode already set")
	// ErrNotChunked is returned for sequence operations on a backend whose
	// format cannot append items incrementally.
	ErrNotChunked = errors.New("cache: sequences need a chunked serializer")
	// ErrInvalidKey is returned for keys that cannot name a file.
	ErrInvalidKey = errors.New("cache: invalid key")
)

// Mode selects the storage layout for a prefix.
type Mode int

const (
	// ModeUnset is the zero Mode; a backend must be configured before use.
	ModeUnset Mode = iota
	// ModeKeyed stores one entry per key under the prefix.
	ModeKeyed
	// ModeSingleton stores exactly one entry for the whole prefix; keys are
	// ignored.
	ModeSingleton
)

func (m Mode) String() string {
	switch m {
	case ModeKeyed:
		return "keyed"
	case ModeSingleton:
		return "singleton"
	default:
		return "unset"
	}
}

// CommitPolicy controls when a sequence entry becomes visible to Contains.
type CommitPolicy int

const (
	// CommitOnComplete stages items while they are produced and publishes
	// the entry only when the sequence is exhausted. An abandoned sequence
	// leaves no entry behind.
	CommitOnComplete CommitPolicy = iota
	// CommitEachItem publishes the entry as soon as it is opened. An
	// abandoned sequence reads back truncated with nothing to tell it apart
	// from a complete one.
	CommitEachItem
)

func (p CommitPolicy) String() string {
	if p == CommitEachItem {
		return "each-item"
	}
	return "on-complete"
}

// ParseCommitPolicy parses the String form of a CommitPolicy.
func ParseCommitPolicy(s string) (CommitPolicy, error) {
	switch strings.ToLower(s) {
	case "", "on-complete":
		return CommitOnComplete, nil
	case "each-item":
		return CommitEachItem, nil
	}
	return CommitOnComplete, errors.Newf("cache: unknown commit policy %q", s)
}

// UnmarshalText lets a CommitPolicy be decoded from configuration.
func (p *CommitPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseCommitPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Backend maps a key to a stored value for one prefix.
type Backend interface {
	// Configure fixes the key mode. It is called once, when a function is
	// wrapped, and prepares the storage location.
	Configure(mode Mode) error
	// Contains reports whether an entry exists for key.
	Contains(ctx context.Context, key string) (bool, error)
	// Get reads a whole value. It fails with ErrNotFound if there is no
	// entry; callers check Contains first.
	Get(ctx context.Context, key string) (any, error)
	// Set writes a whole value, replacing any existing entry.
	Set(ctx context.Context, key string, val any) error
	// SupportsSequences reports whether Iterate and OpenSequence work.
	SupportsSequences() bool
	// Iterate lazily yields the items of a sequence entry.
	Iterate(ctx context.Context, key string) iter.Seq2[any, error]
	// OpenSequence starts writing a sequence entry for key.
	OpenSequence(ctx context.Context, key string) (SequenceWriter, error)
	// Remove deletes the entry for key. It reports whether one existed.
	Remove(ctx context.Context, key string) (bool, error)
	// Location describes where the entry for key lives, for logging.
	Location(key string) string
	// Close releases resources held by the backend.
	Close() error
}

// SequenceWriter appends the items of one sequence entry.
type SequenceWriter interface {
	// Append persists one item before returning.
	Append(ctx context.Context, item any) error
	// Commit marks the sequence as complete.
	Commit(ctx context.Context) error
	// Close releases the writer. A writer closed without Commit leaves the
	// entry unpublished under CommitOnComplete.
	Close() error
}

// DefaultQueryTimeout is the per-operation timeout for backends that
// perform network or database I/O (SQLite, Redis).
const DefaultQueryTimeout = 5 * time.Second

// config holds the resolved configuration for a backend.
type config struct {
	commit       CommitPolicy
	queryTimeout time.Duration
}

// Option configures a Backend implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		commit:       CommitOnComplete,
		queryTimeout: DefaultQueryTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed backends
// (SQLite, Redis). Defaults to DefaultQueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithCommitPolicy sets when sequence entries become visible. Defaults to
// CommitOnComplete.
func WithCommitPolicy(p CommitPolicy) Option {
	return func(c *config) { c.commit = p }
}

// modeState is embedded by backends to track their key mode.
type modeState struct {
	mode Mode
}

func (s *modeState) set(mode Mode, prepare func(Mode) error) error {
	if mode != ModeKeyed && mode != ModeSingleton {
		return errors.AssertionFailedf("cache: invalid mode %d", mode)
	}
	if s.mode == mode {
		return nil
	}
	if s.mode != ModeUnset {
		return errors.Wrapf(ErrModeConflict, "cannot switch from %s to %s", s.mode, mode)
	}
	if prepare != nil {
		if err := prepare(mode); err != nil {
			return err
		}
	}
	s.mode = mode
	return nil
}

func (s *modeState) check() error {
	if s.mode == ModeUnset {
		return ErrModeNotSet
	}
	return nil
}

func validateKey(key string) error {
	if key == "." || key == ".." || strings.ContainsAny(key, `/\`+"\x00") {
		return errors.Wrapf(ErrInvalidKey, "%q", key)
	}
	return nil
}

// errSeq returns a sequence that yields only err.
func errSeq(err error) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(nil, err)
	}
}
