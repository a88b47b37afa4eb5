package memo

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/agentuity/steam-mirror/cache"
	"github.com/agentuity/steam-mirror/logger"
	"github.com/agentuity/steam-mirror/serializer"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	out := []T{}
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func counting[T any](calls *int, items ...T) SeqFunc[T] {
	return func(context.Context, ...any) iter.Seq2[T, error] {
		*calls++
		return func(yield func(T, error) bool) {
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

func TestScalarHitReplay(t *testing.T) {
	// foo(arg) -> {name: "a", arg: arg}
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	foo, err := NewScalar(Config[record]{
		Root:       root,
		Prefix:     "foo",
		Serializer: serializer.JSON{},
		Model:      JSONModel[record]{},
		Key:        AllStr,
	}, func(_ context.Context, args ...any) (record, bool, error) {
		calls++
		return record{Name: "a", Arg: args[0].(string)}, true, nil
	})
	require.NoError(t, err)

	first, found, err := foo.Call(ctx, "ARG")
	require.NoError(t, err)
	assert.True(t, found)
	path := filepath.Join(root, "foo", "ARG.json")
	written, err := os.ReadFile(path)
	require.NoError(t, err)

	second, found, err := foo.Call(ctx, "ARG")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, calls)
	assert.Equal(t, record{Name: "a", Arg: "ARG"}, second)
	assert.Equal(t, first, second)

	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, written, again)
	assert.JSONEq(t, `{"name":"a","arg":"ARG"}`, string(written))

	// Case is not folded.
	_, _, err = foo.Call(ctx, "arg")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestScalarHitReplayYAML(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	foo, err := NewScalar(Config[record]{
		Root:       root,
		Prefix:     "prefix",
		Serializer: serializer.YAML{},
		Model:      JSONModel[record]{},
		Key:        AllStr,
	}, func(_ context.Context, args ...any) (record, bool, error) {
		calls++
		return record{Name: "a", Arg: args[0].(string)}, true, nil
	})
	require.NoError(t, err)

	first, found, err := foo.Call(ctx, "ARG")
	require.NoError(t, err)
	assert.True(t, found)
	written, err := os.ReadFile(filepath.Join(root, "prefix", "ARG.yml"))
	require.NoError(t, err)
	assert.Equal(t, "arg: ARG\nname: a\n", string(written))

	second, found, err := foo.Call(ctx, "ARG")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

// A present result whose primitive form is falsy is stored, but replays as
// absent without calling the function again.
func TestScalarFalsyResultReplaysAbsent(t *testing.T) {
	type optional struct {
		Name string `json:",omitempty"`
	}
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	foo, err := NewScalar(Config[optional]{
		Root:       root,
		Prefix:     "foo",
		Serializer: serializer.YAML{},
		Model:      JSONModel[optional]{},
		Key:        AllStr,
	}, func(context.Context, ...any) (optional, bool, error) {
		calls++
		return optional{}, true, nil
	})
	require.NoError(t, err)

	_, found, err := foo.Call(ctx, "x")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = foo.Call(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, calls)

	zero, err := NewScalar(Config[int64]{
		Root:       root,
		Prefix:     "zero",
		Serializer: serializer.YAML{},
		Model:      JSONModel[int64]{},
		Key:        AllStr,
	}, func(context.Context, ...any) (int64, bool, error) {
		return 0, true, nil
	})
	require.NoError(t, err)
	_, found, err = zero.Call(ctx, "x")
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = zero.Call(ctx, "x")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSequenceHitReplay(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	items := []record{{Name: "0", Arg: "arg"}, {Name: "1", Arg: "arg"}, {Name: "2", Arg: "arg"}}
	gen, err := NewSequence(Config[record]{
		Root:       root,
		Prefix:     "gen",
		Serializer: serializer.YAML{},
		Model:      JSONModel[record]{},
		Key:        AllStr,
	}, counting(&calls, items...))
	require.NoError(t, err)

	assert.Equal(t, items, collect(t, gen.Call(ctx, "arg")))
	data, err := os.ReadFile(filepath.Join(root, "gen", "arg.yml"))
	require.NoError(t, err)
	content := string(data)
	assert.Equal(t, 3, strings.Count(content, "\n- ")+btoi(strings.HasPrefix(content, "- ")))
	assert.Less(t, strings.Index(content, `"0"`), strings.Index(content, `"1"`))
	assert.Less(t, strings.Index(content, `"1"`), strings.Index(content, `"2"`))

	assert.Equal(t, items, collect(t, gen.Call(ctx, "arg")))
	assert.Equal(t, 1, calls)
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

func TestSingletonScalar(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	type single struct {
		Field string `json:"field"`
	}
	fn, err := NewScalar(Config[single]{
		Root:       root,
		Prefix:     "single",
		Serializer: serializer.JSON{},
		Model:      JSONModel[single]{},
	}, func(context.Context, ...any) (single, bool, error) {
		calls++
		return single{Field: "value"}, true, nil
	})
	require.NoError(t, err)

	first, _, err := fn.Call(ctx)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(root, "single.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"field":"value"}`, string(data))

	second, found, err := fn.Call(ctx)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, err = os.Stat(filepath.Join(root, "single"))
	assert.True(t, os.IsNotExist(err))
}

func TestAbsentRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	fn, err := NewScalar(Config[record]{
		Root:       root,
		Prefix:     "absent",
		Serializer: serializer.YAML{},
		Model:      JSONModel[record]{},
		Key:        AllStr,
	}, func(context.Context, ...any) (record, bool, error) {
		calls++
		return record{}, false, nil
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		v, found, err := fn.Call(ctx, 1)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, record{}, v)
	}
	assert.Equal(t, 1, calls)
	cached, err := fn.Cached(ctx, 1)
	require.NoError(t, err)
	assert.True(t, cached)
}

func TestModeExclusivity(t *testing.T) {
	root := t.TempDir()
	noop := func(context.Context, ...any) (string, bool, error) { return "x", true, nil }
	ctx := context.Background()

	keyed, err := NewScalar(Config[string]{Root: root, Prefix: "p", Serializer: serializer.JSON{}, Key: AllStr}, noop)
	require.NoError(t, err)
	single, err := NewScalar(Config[string]{Root: root, Prefix: "p", Serializer: serializer.JSON{}}, noop)
	require.NoError(t, err)

	_, _, err = keyed.Call(ctx, "k")
	require.NoError(t, err)
	_, _, err = single.Call(ctx)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "p", "k.json"))
	assert.FileExists(t, filepath.Join(root, "p.json"))

	// One backend cannot serve both modes.
	b := cache.NewMemory("shared")
	_, err = NewScalar(Config[string]{Backend: b, Key: AllStr}, noop)
	require.NoError(t, err)
	_, err = NewScalar(Config[string]{Backend: b}, noop)
	assert.True(t, errors.Is(err, cache.ErrModeConflict))
}

func TestConfigErrors(t *testing.T) {
	noop := func(context.Context, ...any) (string, bool, error) { return "", false, nil }
	_, err := NewScalar(Config[string]{Prefix: "p"}, noop)
	assert.True(t, errors.Is(err, ErrNoSerializer))

	_, err = NewSequence(Config[string]{Root: t.TempDir(), Prefix: "p", Serializer: serializer.JSON{}, Key: AllStr},
		func(context.Context, ...any) iter.Seq2[string, error] { return nil })
	assert.True(t, errors.Is(err, cache.ErrNotChunked))
}

func TestScalarErrorNotCached(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := NewScalar(Config[string]{Backend: cache.NewMemory("err"), Key: AllStr},
		func(context.Context, ...any) (string, bool, error) {
			calls++
			return "", false, errBoom
		})
	require.NoError(t, err)

	_, _, err = fn.Call(ctx, "k")
	assert.Same(t, errBoom, err)
	_, _, err = fn.Call(ctx, "k")
	assert.Same(t, errBoom, err)
	assert.Equal(t, 2, calls)
}

func failing(calls *int, good int) SeqFunc[string] {
	return func(context.Context, ...any) iter.Seq2[string, error] {
		*calls++
		return func(yield func(string, error) bool) {
			for i := 0; i < good; i++ {
				if !yield(strconv.Itoa(i), nil) {
					return
				}
			}
			yield("", errBoom)
		}
	}
}

func TestSequenceErrorPropagates(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	fn, err := NewSequence(Config[string]{Root: root, Prefix: "p", Serializer: serializer.YAML{}, Key: AllStr}, failing(&calls, 2))
	require.NoError(t, err)

	var got []string
	var gotErr error
	for v, err := range fn.Call(ctx, "k") {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"0", "1"}, got)
	assert.Same(t, errBoom, gotErr)

	// The staged items stay on disk but the entry is not a hit.
	assert.FileExists(t, filepath.Join(root, "p", "k.yml.partial"))
	cached, err := fn.Cached(ctx, "k")
	require.NoError(t, err)
	assert.False(t, cached)
}

func TestSequenceEarlyStop(t *testing.T) {
	ctx := context.Background()
	items := []string{"a", "b", "c"}

	t.Run("on complete", func(t *testing.T) {
		calls := 0
		fn, err := NewSequence(Config[string]{Root: t.TempDir(), Prefix: "p", Serializer: serializer.YAML{}, Key: AllStr},
			counting(&calls, items...))
		require.NoError(t, err)
		for range fn.Call(ctx, "k") {
			break
		}
		assert.Equal(t, items, collect(t, fn.Call(ctx, "k")))
		assert.Equal(t, 2, calls)
	})

	t.Run("each item", func(t *testing.T) {
		calls := 0
		fn, err := NewSequence(Config[string]{
			Root:         t.TempDir(),
			Prefix:       "p",
			Serializer:   serializer.YAML{},
			Key:          AllStr,
			CommitPolicy: cache.CommitEachItem,
		}, counting(&calls, items...))
		require.NoError(t, err)
		for range fn.Call(ctx, "k") {
			break
		}
		// The truncated entry is replayed as if it were complete.
		assert.Equal(t, []string{"a"}, collect(t, fn.Call(ctx, "k")))
		assert.Equal(t, 1, calls)
	})
}

func TestEmptySequence(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := NewSequence(Config[string]{Root: t.TempDir(), Prefix: "p", Serializer: serializer.YAML{}, Key: AllStr},
		counting[string](&calls))
	require.NoError(t, err)
	assert.Empty(t, collect(t, fn.Call(ctx, "k")))
	assert.Empty(t, collect(t, fn.Call(ctx, "k")))
	assert.Equal(t, 1, calls)
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	calls := 0
	fn, err := NewScalar(Config[int64]{Backend: cache.NewMemory("forget"), Key: AllStr},
		func(context.Context, ...any) (int64, bool, error) {
			calls++
			return 42, true, nil
		})
	require.NoError(t, err)

	_, _, err = fn.Call(ctx, "k")
	require.NoError(t, err)
	removed, err := fn.Forget(ctx, "k")
	require.NoError(t, err)
	assert.True(t, removed)
	v, _, err := fn.Call(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.Equal(t, 2, calls)
}

func TestLogsHitsAndMisses(t *testing.T) {
	ctx := context.Background()
	log := logger.NewTestLogger()
	fn, err := NewScalar(Config[string]{Backend: cache.NewMemory("log"), Prefix: "log", Key: AllStr, Logger: log},
		func(context.Context, ...any) (string, bool, error) { return "v", true, nil })
	require.NoError(t, err)
	_, _, _ = fn.Call(ctx, "k")
	_, _, _ = fn.Call(ctx, "k")
	assert.Equal(t, []string{"miss memory:log/k", "hit memory:log/k"}, log.Messages("DEBUG"))
}

func TestCorruptEntryPropagates(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	calls := 0
	fn, err := NewScalar(Config[string]{Root: root, Prefix: "p", Serializer: serializer.JSON{}, Key: AllStr},
		func(context.Context, ...any) (string, bool, error) {
			calls++
			return "v", true, nil
		})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "p", "k.json"), []byte("{"), 0o644))

	_, _, err = fn.Call(ctx, "k")
	assert.True(t, errors.Is(err, serializer.ErrFormat))
	assert.Equal(t, 0, calls)
}

func TestOtherBackends(t *testing.T) {
	backends := map[string]func(t *testing.T, prefix string) cache.Backend{
		"memory": func(t *testing.T, prefix string) cache.Backend {
			return cache.NewMemory(prefix)
		},
		"sqlite": func(t *testing.T, prefix string) cache.Backend {
			db, err := cache.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "memo.db"))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return cache.NewSQLite(db, prefix)
		},
		"redis": func(t *testing.T, prefix string) cache.Backend {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return cache.NewRedis(client, prefix)
		},
		"onefile": func(t *testing.T, prefix string) cache.Backend {
			return cache.NewOneFile(filepath.Join(t.TempDir(), prefix), serializer.YAML{})
		},
	}
	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			calls := 0
			fn, err := NewScalar(Config[record]{
				Backend: newBackend(t, "foo"),
				Model:   JSONModel[record]{},
				Key:     AllStr,
			}, func(_ context.Context, args ...any) (record, bool, error) {
				calls++
				return record{Name: "a", Arg: args[0].(string), SteamID: 76561198012345678}, true, nil
			})
			require.NoError(t, err)
			for i := 0; i < 2; i++ {
				v, found, err := fn.Call(ctx, "ARG")
				require.NoError(t, err)
				assert.True(t, found)
				assert.Equal(t, record{Name: "a", Arg: "ARG", SteamID: 76561198012345678}, v)
			}
			assert.Equal(t, 1, calls)

			b := newBackend(t, "gen")
			if !b.SupportsSequences() {
				return
			}
			seqCalls := 0
			gen, err := NewSequence(Config[string]{Backend: b, Key: AllStr}, counting(&seqCalls, "x", "y", "z"))
			require.NoError(t, err)
			assert.Equal(t, []string{"x", "y", "z"}, collect(t, gen.Call(ctx, "arg")))
			assert.Equal(t, []string{"x", "y", "z"}, collect(t, gen.Call(ctx, "arg")))
			assert.Equal(t, 1, seqCalls)
		})
	}
}
