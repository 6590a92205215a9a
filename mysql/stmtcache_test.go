package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStmtCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newStmtCache(2)

	a := &Statement{id: 1, refCount: 1}
	b := &Statement{id: 2, refCount: 1}
	require.Nil(t, c.put("a", a))
	require.Nil(t, c.put("b", b))

	// touch "a" so "b" becomes the LRU victim.
	require.NotNil(t, c.get("a"))

	cc := &Statement{id: 3, refCount: 1}
	evicted := c.put("c", cc)
	require.Equal(t, b, evicted)
}

func TestStmtCacheCapacityZeroDisables(t *testing.T) {
	c := newStmtCache(0)
	require.False(t, c.enabled())
}

func TestStmtCacheDrainReturnsEverythingAndEmpties(t *testing.T) {
	c := newStmtCache(5)
	c.put("a", &Statement{id: 1, refCount: 1})
	c.put("b", &Statement{id: 2, refCount: 1})

	drained := c.drain()
	require.Len(t, drained, 2)
	require.Nil(t, c.get("a"))
	require.Nil(t, c.get("b"))
}
