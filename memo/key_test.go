package memo

import (
	"strconv"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type game struct{ id int64 }

func (g game) CacheID() string { return "game-" + strconv.FormatInt(g.id, 10) }

func TestAllStr(t *testing.T) {
	key, err := AllStr("ARG", 440, int64(76561198000000000))
	require.NoError(t, err)
	assert.Equal(t, "ARG_440_76561198000000000", key)

	key, err = AllStr()
	require.NoError(t, err)
	assert.Equal(t, "", key)
}

func TestKeyDeterminism(t *testing.T) {
	a, _ := AllStr("x", 1)
	b, _ := AllStr("x", 1)
	c, _ := AllStr("x", 2)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestNoSelf(t *testing.T) {
	key, err := NoSelf(&game{}, "en", 100)
	require.NoError(t, err)
	assert.Equal(t, "en_100", key)

	_, err = NoSelf()
	assert.True(t, errors.Is(err, ErrKeyArgs))
}

func TestSelfID(t *testing.T) {
	key, err := SelfID(game{id: 7})
	require.NoError(t, err)
	assert.Equal(t, "game-7", key)

	_, err = SelfID("not an identifier")
	assert.True(t, errors.Is(err, ErrKeyArgs))
	_, err = SelfID(game{}, game{})
	assert.True(t, errors.Is(err, ErrKeyArgs))
}

func TestKeyBy(t *testing.T) {
	k := KeyBy(func(g game) string { return "id" })
	key, err := k(game{})
	require.NoError(t, err)
	assert.Equal(t, "id", key)

	_, err = k(3)
	assert.True(t, errors.Is(err, ErrKeyArgs))
}

func TestHashed(t *testing.T) {
	k := Hashed(AllStr)
	a, err := k("a", "very", "long", "tuple")
	require.NoError(t, err)
	b, err := k("a", "very", "long", "tuple")
	require.NoError(t, err)
	c, err := k("another")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^[0-9a-f]{1,16}$`, a)

	_, err = Hashed(SelfID)(1)
	assert.Error(t, err)
}

func TestStrategyByName(t *testing.T) {
	for _, name := range []string{"all_str", "no_self", "self_id"} {
		k, err := StrategyByName(name)
		require.NoError(t, err)
		assert.NotNil(t, k, name)
	}
	k, err := StrategyByName("none")
	require.NoError(t, err)
	assert.Nil(t, k)

	_, err = StrategyByName("ALL_STR")
	assert.Error(t, err)
}
