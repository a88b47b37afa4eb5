package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesKeyedLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	f := NewFiles(filepath.Join(root, "get_app_info"), serializer.JSON{})
	require.NoError(t, f.Configure(ModeKeyed))

	path, err := f.Path("440")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "get_app_info", "440.json"), path)

	require.NoError(t, f.Set(ctx, "440", map[string]any{"name": "Team Fortress 2"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Team Fortress 2"}`, string(data))
}

func TestFilesSingletonLayout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	f := NewFiles(filepath.Join(root, "nested", "all_apps"), serializer.JSON{})
	require.NoError(t, f.Configure(ModeSingleton))

	path, err := f.Path("whatever")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "nested", "all_apps.json"), path)

	require.NoError(t, f.Set(ctx, "", []any{int64(1), int64(2)}))
	_, err = os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "nested", "all_apps"))
	assert.True(t, os.IsNotExist(err), "singleton mode must not create the prefix directory")
}

func TestFilesInvalidKey(t *testing.T) {
	f := NewFiles(filepath.Join(t.TempDir(), "p"), serializer.JSON{})
	require.NoError(t, f.Configure(ModeKeyed))
	for _, key := range []string{"..", ".", "a/b", `a\b`} {
		_, err := f.Path(key)
		assert.True(t, errors.Is(err, ErrInvalidKey), "key %q", key)
	}
}

func TestFilesSequenceNeedsChunkedFormat(t *testing.T) {
	ctx := context.Background()
	f := NewFiles(filepath.Join(t.TempDir(), "p"), serializer.JSON{})
	require.NoError(t, f.Configure(ModeKeyed))
	assert.False(t, f.SupportsSequences())

	_, err := f.OpenSequence(ctx, "k")
	assert.True(t, errors.Is(err, ErrNotChunked))
	for _, err := range f.Iterate(ctx, "k") {
		assert.True(t, errors.Is(err, ErrNotChunked))
	}
}

func TestFilesSequenceStagesPartialFile(t *testing.T) {
	ctx := context.Background()
	f := NewFiles(filepath.Join(t.TempDir(), "reviews"), serializer.YAML{})
	require.NoError(t, f.Configure(ModeKeyed))
	path, err := f.Path("440")
	require.NoError(t, err)

	w, err := f.OpenSequence(ctx, "440")
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, "first"))

	_, err = os.Stat(path + partialSuffix)
	require.NoError(t, err, "items go to the partial file while the sequence is open")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.Commit(ctx))
	require.NoError(t, w.Close())
	_, err = os.Stat(path + partialSuffix)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []any{"first"}, readAll(t, f, "440"))
}

func TestFilesRemoveDropsPartial(t *testing.T) {
	ctx := context.Background()
	f := NewFiles(filepath.Join(t.TempDir(), "reviews"), serializer.YAML{})
	require.NoError(t, f.Configure(ModeKeyed))
	path, err := f.Path("440")
	require.NoError(t, err)

	writeSequence(t, f, "440", []any{"a"}, false)
	_, err = os.Stat(path + partialSuffix)
	require.NoError(t, err)

	removed, err := f.Remove(ctx, "440")
	require.NoError(t, err)
	assert.False(t, removed)
	_, err = os.Stat(path + partialSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestFilesCorruptEntry(t *testing.T) {
	ctx := context.Background()
	f := NewFiles(filepath.Join(t.TempDir(), "p"), serializer.JSON{})
	require.NoError(t, f.Configure(ModeKeyed))
	path, err := f.Path("bad")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	found, err := f.Contains(ctx, "bad")
	require.NoError(t, err)
	assert.True(t, found)
	_, err = f.Get(ctx, "bad")
	assert.True(t, errors.Is(err, serializer.ErrFormat))
}
