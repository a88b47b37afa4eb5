// Package serializer converts cached values to and from bytes on disk.
//
// Values are kept in their primitive form: nil, bool, int64, uint64,
// float64, string, []any and map[string]any. A [Serializer] reads and
// writes a whole value at once. A [Chunked] serializer can also append items
// to a file one at a time and read them back lazily, which lets a long
// sequence be produced and replayed without holding it in memory.
package serializer

import (
	"bytes"
	"encoding/json"
	"iter"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/natefinch/atomic"
)

// ErrFormat marks malformed stored content.
var ErrFormat = errors.New("serializer: malformed content")

// Serializer reads and writes a whole value.
type Serializer interface {
	// Ext is the file extension (without the dot) identifying the format.
	Ext() string
	// Dump writes v to path, replacing any previous content.
	Dump(path string, v any) error
	// Load reads the value stored at path.
	Load(path string) (any, error)
}

// Appender writes one sequence item at a time.
type Appender interface {
	// Append serializes item and writes it to the file before returning.
	Append(item any) error
	// Close releases the file handle.
	Close() error
}

// Chunked is a Serializer which also supports incremental sequences.
type Chunked interface {
	Serializer
	// Iterate lazily yields the items stored at path, in write order.
	Iterate(path string) iter.Seq2[any, error]
	// AppendWriter truncates path and returns an Appender writing to it.
	AppendWriter(path string) (Appender, error)
}

// ByName returns the serializer for a format name or file extension.
func ByName(name string) (Serializer, error) {
	switch name {
	case "json":
		return JSON{}, nil
	case "yml", "yaml":
		return YAML{}, nil
	case "msgpack":
		return Msgpack{}, nil
	}
	return nil, errors.Newf("serializer: unknown format %q", name)
}

// WithAppender opens an append writer on path, hands it to fn and closes it
// on every exit path. The first error wins.
func WithAppender(c Chunked, path string, fn func(Appender) error) (err error) {
	w, err := c.AppendWriter(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(w)
}

func writeFile(path string, buf []byte) error {
	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return buf, nil
}

func formatError(err error, path string) error {
	return errors.Mark(errors.Wrapf(err, "parse %s", path), ErrFormat)
}

// normalize converts decoded numbers into int64 where they are integral so
// that large identifiers survive a round trip through float-less formats.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return int64(val)
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[toString(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	default:
		return v
	}
}

func toString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	buf, _ := json.Marshal(k)
	return string(bytes.Trim(buf, `"`))
}
