package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shirotsuki/phrase-renderer/internal/keys"
)

func TestStoreSetGetHas(t *testing.T) {
	t.Parallel()

	s := NewStore[[]float64]()
	k := keys.Key("a")

	_, ok := s.Get(k)
	assert.False(t, ok)
	assert.False(t, s.Has(k))

	s.Set(k, []float64{1, 2, 3})
	v, ok := s.Get(k)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, v)
	assert.True(t, s.Has(k))
	assert.Equal(t, 1, s.Len())
}

func TestStoreDistinctKeysDoNotCollide(t *testing.T) {
	t.Parallel()

	s := NewStore[int]()
	s.Set(keys.Key("a"), 1)
	s.Set(keys.Key("b"), 2)

	va, _ := s.Get(keys.Key("a"))
	vb, _ := s.Get(keys.Key("b"))
	assert.Equal(t, 1, va)
	assert.Equal(t, 2, vb)
	assert.Equal(t, 2, s.Len())
}

func TestCachesBundlesFourStores(t *testing.T) {
	t.Parallel()

	c := NewCaches()
	assert.NotNil(t, c.Query)
	assert.NotNil(t, c.Pitch)
	assert.NotNil(t, c.Volume)
	assert.NotNil(t, c.Voice)
}
