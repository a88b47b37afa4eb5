package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Msgpack stores a whole value as a msgpack document.
type Msgpack struct{}

var _ Serializer = Msgpack{}

func (Msgpack) Ext() string { return "msgpack" }

func (Msgpack) Dump(path string, v any) error {
	buf, err := MarshalValue(v)
	if err != nil {
		return err
	}
	return writeFile(path, buf)
}

func (Msgpack) Load(path string) (any, error) {
	buf, err := readFile(path)
	if err != nil {
		return nil, err
	}
	v, err := UnmarshalValue(buf)
	if err != nil {
		return nil, formatError(err, path)
	}
	return v, nil
}

// MarshalValue encodes a primitive value with msgpack.
func MarshalValue(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// UnmarshalValue decodes msgpack bytes into a primitive value. Integers are
// widened to int64/uint64 and maps decode as map[string]any.
func UnmarshalValue(buf []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(buf))
	dec.UseLooseInterfaceDecoding(true)
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}
