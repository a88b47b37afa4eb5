package cache

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
)

// OneFile keeps every entry of a prefix in a single document at
// <dir>.<ext>, a map from key to value. The document is loaded on first use
// and rewritten whole on every Set, so it suits small, frequently read
// tables rather than large values. Sequences are not supported.
type OneFile struct {
	modeState
	file       string
	serializer serializer.Serializer
	data       map[string]any
}

var _ Backend = (*OneFile)(nil)

// NewOneFile returns a Backend keeping all entries for the prefix dir in
// one file.
func NewOneFile(dir string, s serializer.Serializer) *OneFile {
	return &OneFile{
		file:       filepath.Clean(dir) + "." + s.Ext(),
		serializer: s,
	}
}

func (o *OneFile) Configure(mode Mode) error {
	return o.set(mode, func(Mode) error {
		return errors.Wrap(os.MkdirAll(filepath.Dir(o.file), 0o755), "create cache directory")
	})
}

func (o *OneFile) entryKey(key string) string {
	if o.mode == ModeSingleton {
		return ""
	}
	return key
}

func (o *OneFile) load() (map[string]any, error) {
	if err := o.check(); err != nil {
		return nil, err
	}
	if o.data != nil {
		return o.data, nil
	}
	ok, err := exists(o.file)
	if err != nil {
		return nil, err
	}
	o.data = make(map[string]any)
	if !ok {
		return o.data, nil
	}
	v, err := o.serializer.Load(o.file)
	if err != nil {
		o.data = nil
		return nil, err
	}
	switch doc := v.(type) {
	case nil:
	case map[string]any:
		o.data = doc
	default:
		o.data = nil
		return nil, errors.Mark(errors.Newf("%s holds %T, not a map", o.file, v), serializer.ErrFormat)
	}
	return o.data, nil
}

func (o *OneFile) Location(string) string { return o.file }

func (o *OneFile) Contains(_ context.Context, key string) (bool, error) {
	data, err := o.load()
	if err != nil {
		return false, err
	}
	_, ok := data[o.entryKey(key)]
	return ok, nil
}

func (o *OneFile) Get(_ context.Context, key string) (any, error) {
	data, err := o.load()
	if err != nil {
		return nil, err
	}
	v, ok := data[o.entryKey(key)]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s[%q]", o.file, key)
	}
	return v, nil
}

func (o *OneFile) Set(_ context.Context, key string, val any) error {
	data, err := o.load()
	if err != nil {
		return err
	}
	data[o.entryKey(key)] = val
	return o.serializer.Dump(o.file, data)
}

func (o *OneFile) Remove(_ context.Context, key string) (bool, error) {
	data, err := o.load()
	if err != nil {
		return false, err
	}
	k := o.entryKey(key)
	if _, ok := data[k]; !ok {
		return false, nil
	}
	delete(data, k)
	return true, o.serializer.Dump(o.file, data)
}

func (o *OneFile) SupportsSequences() bool { return false }

func (o *OneFile) Iterate(context.Context, string) iter.Seq2[any, error] {
	return errSeq(errors.Wrap(ErrNotChunked, "one-file backend"))
}

func (o *OneFile) OpenSequence(context.Context, string) (SequenceWriter, error) {
	return nil, errors.Wrap(ErrNotChunked, "one-file backend")
}

func (o *OneFile) Close() error { return nil }
