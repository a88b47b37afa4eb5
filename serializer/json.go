package serializer

import (
	"bytes"
	"encoding/json"
)

// JSON stores a whole value as a single JSON document. It has no
// incremental mode.
type JSON struct{}

var _ Serializer = JSON{}

func (JSON) Ext() string { return "json" }

func (JSON) Dump(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return writeFile(path, bytes.TrimRight(buf.Bytes(), "\n"))
}

func (JSON) Load(path string) (any, error) {
	buf, err := readFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, formatError(err, path)
	}
	return normalize(v), nil
}

// ToPrimitive converts v into primitive form by encoding it as JSON and
// decoding the result. Struct tags decide field names and omitted fields.
func ToPrimitive(v any) (any, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return normalize(out), nil
}
