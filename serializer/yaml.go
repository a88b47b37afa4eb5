package serializer

import (
	"bufio"
	"bytes"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const chunkStart = "- "

// YAML stores values as YAML documents. Sequences are written as a
// concatenation of one-element list blocks, one per item, so that each item
// can be appended and parsed on its own.
type YAML struct{}

var _ Chunked = YAML{}

func (YAML) Ext() string { return "yml" }

func (YAML) Dump(path string, v any) error {
	buf, err := encodeYAML(v)
	if err != nil {
		return err
	}
	return writeFile(path, buf)
}

func (YAML) Load(path string) (any, error) {
	buf, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(buf, &v); err != nil {
		return nil, formatError(err, path)
	}
	return normalize(v), nil
}

func (YAML) Iterate(path string) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, errors.Wrapf(err, "open %s", path))
			return
		}
		defer f.Close()
		for chunk, err := range yamlChunks(f) {
			if err != nil {
				yield(nil, formatError(err, path))
				return
			}
			var items []any
			if err := yaml.Unmarshal([]byte(chunk), &items); err != nil {
				yield(nil, formatError(err, path))
				return
			}
			if len(items) != 1 {
				yield(nil, formatError(errors.Newf("chunk holds %d items", len(items)), path))
				return
			}
			if !yield(normalize(items[0]), nil) {
				return
			}
		}
	}
}

func (YAML) AppendWriter(path string) (Appender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &yamlAppender{f: f}, nil
}

type yamlAppender struct {
	f *os.File
}

func (a *yamlAppender) Append(item any) error {
	buf, err := encodeYAML([]any{item})
	if err != nil {
		return err
	}
	if _, err := a.f.Write(buf); err != nil {
		return errors.Wrapf(err, "append %s", a.f.Name())
	}
	return a.f.Sync()
}

func (a *yamlAppender) Close() error {
	return a.f.Close()
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// yamlChunks splits r into one-item list blocks. Lines are kept whole, so
// items of any length are supported.
func yamlChunks(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		br := bufio.NewReader(r)
		var chunk strings.Builder
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				switch {
				case chunk.Len() == 0 && !strings.HasPrefix(line, chunkStart):
					if strings.TrimSpace(line) != "" {
						yield("", errors.Newf("expected %q at start of chunk, got %q", chunkStart, line))
						return
					}
				case chunk.Len() > 0 && strings.HasPrefix(line, chunkStart):
					if !yield(chunk.String(), nil) {
						return
					}
					chunk.Reset()
					chunk.WriteString(line)
				default:
					chunk.WriteString(line)
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				yield("", err)
				return
			}
		}
		if chunk.Len() > 0 {
			yield(chunk.String(), nil)
		}
	}
}
