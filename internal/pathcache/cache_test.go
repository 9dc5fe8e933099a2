package pathcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheLookupInsert(t *testing.T) {
	c := New()
	assert.False(t, c.Lookup(42))
	c.Insert(42)
	assert.True(t, c.Lookup(42))
	assert.False(t, c.Lookup(43))
	assert.Equal(t, 1, c.Len())
}

func TestCacheInsertIdempotent(t *testing.T) {
	c := New()
	c.Insert(7)
	c.Insert(7)
	assert.Equal(t, 1, c.Len())
}

func TestCacheReset(t *testing.T) {
	c := New()
	c.Insert(1)
	c.Insert(2)
	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Lookup(1))
}
