package memo

import (
	"encoding/json"

	"github.com/agentuity/steam-mirror/serializer"
	"github.com/cockroachdb/errors"
)

// Model converts between a result type and the primitive form stored in the
// cache.
type Model[T any] interface {
	// Flatten converts a present value into its primitive form.
	Flatten(v T) (any, error)
	// Validate reconstructs a value from its primitive form. found is false
	// when raw represents an absent result.
	Validate(raw any) (v T, found bool, err error)
}

// JSONModel maps T through its json struct tags: tag names alias fields and
// omitempty drops unset ones. A falsy primitive (nil, false, zero, "", or an
// empty map or list) validates to an absent result.
type JSONModel[T any] struct{}

var _ Model[struct{}] = JSONModel[struct{}]{}

func (JSONModel[T]) Flatten(v T) (any, error) {
	raw, err := serializer.ToPrimitive(v)
	return raw, errors.Wrapf(err, "flatten %T", v)
}

func (JSONModel[T]) Validate(raw any) (T, bool, error) {
	var v T
	if falsy(raw) {
		return v, false, nil
	}
	if err := convert(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Passthrough stores values as they are. Stored nil replays as absent.
type Passthrough[T any] struct{}

var _ Model[any] = Passthrough[any]{}

func (Passthrough[T]) Flatten(v T) (any, error) {
	return v, nil
}

func (Passthrough[T]) Validate(raw any) (T, bool, error) {
	var v T
	if raw == nil {
		return v, false, nil
	}
	if typed, ok := raw.(T); ok {
		return typed, true, nil
	}
	if err := convert(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}

func convert(raw any, out any) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "re-encode stored value")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return errors.Mark(errors.Wrapf(err, "stored value does not fit %T", out), serializer.ErrFormat)
	}
	return nil
}

func falsy(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case int64:
		return v == 0
	case int:
		return v == 0
	case uint64:
		return v == 0
	case float64:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}
