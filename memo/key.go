package memo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// ErrKeyArgs is returned when the arguments of a call do not fit the key
// function.
var ErrKeyArgs = errors.New("memo: arguments do not fit the key function")

// KeyFunc derives the cache key of a call from its arguments. A nil KeyFunc
// selects singleton mode: one entry for the whole prefix.
type KeyFunc func(args ...any) (string, error)

// Identifier is implemented by values that know their own cache key.
type Identifier interface {
	CacheID() string
}

func join(args []any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprint(arg)
	}
	return strings.Join(parts, "_")
}

// AllStr joins the string form of every argument with "_".
func AllStr(args ...any) (string, error) {
	return join(args), nil
}

// NoSelf joins the string form of every argument but the first with "_".
// The first argument is the receiver of a method-style call.
func NoSelf(args ...any) (string, error) {
	if len(args) == 0 {
		return "", errors.Wrap(ErrKeyArgs, "no_self needs a receiver argument")
	}
	return join(args[1:]), nil
}

// SelfID uses the CacheID of the only argument.
func SelfID(args ...any) (string, error) {
	if len(args) != 1 {
		return "", errors.Wrapf(ErrKeyArgs, "self_id takes one argument, got %d", len(args))
	}
	id, ok := args[0].(Identifier)
	if !ok {
		return "", errors.Wrapf(ErrKeyArgs, "self_id: %T has no CacheID", args[0])
	}
	return id.CacheID(), nil
}

// KeyBy builds a KeyFunc from an identity function over the first argument.
func KeyBy[A any](identity func(A) string) KeyFunc {
	return func(args ...any) (string, error) {
		if len(args) == 0 {
			return "", errors.Wrap(ErrKeyArgs, "missing identity argument")
		}
		a, ok := args[0].(A)
		if !ok {
			var want A
			return "", errors.Wrapf(ErrKeyArgs, "want %T, got %T", want, args[0])
		}
		return identity(a), nil
	}
}

// Hashed replaces the key produced by k with its xxhash digest, for argument
// tuples too long to name a file.
func Hashed(k KeyFunc) KeyFunc {
	return func(args ...any) (string, error) {
		key, err := k(args...)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(xxhash.Sum64String(key), 16), nil
	}
}

// StrategyByName returns the KeyFunc registered under name. "none" and ""
// return a nil KeyFunc (singleton mode).
func StrategyByName(name string) (KeyFunc, error) {
	switch name {
	case "all_str":
		return AllStr, nil
	case "no_self":
		return NoSelf, nil
	case "self_id":
		return SelfID, nil
	case "none", "":
		return nil, nil
	}
	return nil, errors.Newf("memo: unknown key strategy %q", name)
}
