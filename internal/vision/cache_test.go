package vision

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	a := CacheKey("ultraface", []byte("img"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, CacheKey("ultraface", []byte("img")))
	assert.NotEqual(t, a, CacheKey("http", []byte("img")))
}

func TestMemoryCache_Bounded(t *testing.T) {
	c, err := OpenCache("", 2)
	require.NoError(t, err)
	c.Set("a", nil)
	c.Set("b", []Detection{{Score: 1}})
	c.Set("c", nil)

	hits := 0
	for _, k := range []string{"a", "b", "c"} {
		if _, ok := c.Get(k); ok {
			hits++
		}
	}
	assert.Equal(t, 2, hits)
	_, ok := c.Get("c")
	assert.True(t, ok)
	assert.NoError(t, c.Close())
}

func TestBoltCache_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.db")
	c, err := OpenCache(path, 0)
	require.NoError(t, err)

	want := []Detection{{BoundingBox: BoundingBox{X: 0.1, Y: 0.2, W: 0.3, H: 0.4}, Score: 0.9}}
	c.Set("k", want)
	c.Set("empty", []Detection{})
	require.NoError(t, c.Close())

	c, err = OpenCache(path, 0)
	require.NoError(t, err)
	defer c.Close()

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = c.Get("empty")
	assert.True(t, ok)
	assert.Empty(t, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}
