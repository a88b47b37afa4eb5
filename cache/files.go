package cache

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
	"github.com/natefinch/atomic"
)

// partialSuffix is appended to the file of a sequence still being written
// under CommitOnComplete.
const partialSuffix = ".partial"

// Files stores each entry in its own file. In keyed mode an entry lives at
// <dir>/<key>.<ext>; in singleton mode the single entry lives at <dir>.<ext>.
type Files struct {
	modeState
	dir        string
	serializer serializer.Serializer
	cfg        config
}

var _ Backend = (*Files)(nil)

// NewFiles returns a Backend storing entries for the prefix directory dir
// with the given serializer.
func NewFiles(dir string, s serializer.Serializer, opts ...Option) *Files {
	return &Files{
		dir:        filepath.Clean(dir),
		serializer: s,
		cfg:        applyOptions(opts),
	}
}

func (f *Files) Configure(mode Mode) error {
	return f.set(mode, func(mode Mode) error {
		dir := f.dir
		if mode == ModeSingleton {
			dir = filepath.Dir(f.dir)
		}
		return errors.Wrap(os.MkdirAll(dir, 0o755), "create cache directory")
	})
}

// Path returns the file holding the entry for key.
func (f *Files) Path(key string) (string, error) {
	if err := f.check(); err != nil {
		return "", err
	}
	if f.mode == ModeSingleton {
		return f.dir + "." + f.serializer.Ext(), nil
	}
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.dir, key+"."+f.serializer.Ext()), nil
}

func (f *Files) Location(key string) string {
	path, err := f.Path(key)
	if err != nil {
		return f.dir
	}
	return path
}

func (f *Files) Contains(_ context.Context, key string) (bool, error) {
	path, err := f.Path(key)
	if err != nil {
		return false, err
	}
	return exists(path)
}

func (f *Files) Get(_ context.Context, key string) (any, error) {
	path, err := f.Path(key)
	if err != nil {
		return nil, err
	}
	ok, err := exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s", path)
	}
	return f.serializer.Load(path)
}

func (f *Files) Set(_ context.Context, key string, val any) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create cache directory")
	}
	return f.serializer.Dump(path, val)
}

func (f *Files) SupportsSequences() bool {
	_, ok := f.serializer.(serializer.Chunked)
	return ok
}

func (f *Files) chunked() (serializer.Chunked, error) {
	c, ok := f.serializer.(serializer.Chunked)
	if !ok {
		return nil, errors.Wrapf(ErrNotChunked, "format %q", f.serializer.Ext())
	}
	return c, nil
}

func (f *Files) Iterate(_ context.Context, key string) iter.Seq2[any, error] {
	c, err := f.chunked()
	if err != nil {
		return errSeq(err)
	}
	path, err := f.Path(key)
	if err != nil {
		return errSeq(err)
	}
	return c.Iterate(path)
}

func (f *Files) OpenSequence(_ context.Context, key string) (SequenceWriter, error) {
	c, err := f.chunked()
	if err != nil {
		return nil, err
	}
	path, err := f.Path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache directory")
	}
	target := path
	if f.cfg.commit == CommitOnComplete {
		target = path + partialSuffix
	}
	w, err := c.AppendWriter(target)
	if err != nil {
		return nil, err
	}
	return &fileSequence{w: w, target: target, final: path}, nil
}

func (f *Files) Remove(_ context.Context, key string) (bool, error) {
	path, err := f.Path(key)
	if err != nil {
		return false, err
	}
	_ = os.Remove(path + partialSuffix)
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "remove %s", path)
	}
	return true, nil
}

func (f *Files) Close() error { return nil }

type fileSequence struct {
	w      serializer.Appender
	target string
	final  string
	closed bool
}

func (s *fileSequence) Append(_ context.Context, item any) error {
	return s.w.Append(item)
}

func (s *fileSequence) Commit(_ context.Context) error {
	if err := s.Close(); err != nil {
		return err
	}
	if s.target == s.final {
		return nil
	}
	return errors.Wrapf(atomic.ReplaceFile(s.target, s.final), "commit %s", s.final)
}

func (s *fileSequence) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", path)
}
