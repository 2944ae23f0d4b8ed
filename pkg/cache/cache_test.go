package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRistretto(t *testing.T) *Ristretto {
	t.Helper()
	c, err := NewRistretto(Config{MaxCost: 1 << 20, NumCounters: 1000})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestRistretto_SetGetDel(t *testing.T) {
	c := newRistretto(t)

	c.Set([]byte("k"), []byte("v"))
	c.Wait()

	v, ok := c.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	c.Del([]byte("k"))
	_, ok = c.Get([]byte("k"))
	assert.False(t, ok)
}

func TestRistretto_DelAfterSetWins(t *testing.T) {
	c := newRistretto(t)

	c.Set([]byte("k"), []byte("stale"))
	c.Del([]byte("k"))
	c.Wait()

	_, ok := c.Get([]byte("k"))
	assert.False(t, ok)
}

func TestRistretto_Clear(t *testing.T) {
	c := newRistretto(t)

	c.Set([]byte("a"), []byte("1"))
	c.Set([]byte("b"), []byte("2"))
	c.Wait()
	c.Clear()

	_, ok := c.Get([]byte("a"))
	assert.False(t, ok)
	_, ok = c.Get([]byte("b"))
	assert.False(t, ok)
}

func TestRistretto_Stats(t *testing.T) {
	c := newRistretto(t)

	c.Set([]byte("k"), []byte("v"))
	c.Wait()
	c.Get([]byte("k"))
	c.Get([]byte("missing"))

	s := c.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, uint64(1), s.Keys)
	assert.Equal(t, uint64(2), s.Cost)
}

func TestNewRistretto_InvalidConfig(t *testing.T) {
	_, err := NewRistretto(Config{})
	assert.Error(t, err)
}

func TestNull(t *testing.T) {
	var c Cache = Null{}
	c.Set([]byte("k"), []byte("v"))
	_, ok := c.Get([]byte("k"))
	assert.False(t, ok)
	c.Del([]byte("k"))
	c.Wait()
	c.Clear()
	c.Close()
}
