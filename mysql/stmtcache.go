package mysql

import "container/list"

// stmtCache is a bounded LRU from rewritten query text to a shared
// Statement handle (spec §4.5). Capacity zero disables caching
// entirely: prepare always misses and the caller owns the handle.
//
// Grounded on the container/list + map shape used for route/statement
// caches across the retrieval pack's proxy and gateway repos; no pack
// dependency supplies a generic LRU, so this one component is built on
// the standard library by necessity (see DESIGN.md).
type stmtCache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type stmtCacheEntry struct {
	query string
	stmt  *Statement
}

func newStmtCache(capacity int) *stmtCache {
	return &stmtCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *stmtCache) enabled() bool { return c.capacity > 0 }

// get returns the cached statement for query and moves it to the
// most-recently-used position, retaining an extra reference for the
// caller (spec §4.5's shared-handle refcounting).
func (c *stmtCache) get(query string) *Statement {
	elem, ok := c.entries[query]
	if !ok {
		return nil
	}
	c.order.MoveToFront(elem)
	stmt := elem.Value.(*stmtCacheEntry).stmt
	stmt.retain()
	return stmt
}

// put inserts stmt (which the cache now owns one reference to) and
// returns the evicted statement, if inserting over capacity forced an
// eviction, so the caller can issue COM_STMT_CLOSE for it.
func (c *stmtCache) put(query string, stmt *Statement) *Statement {
	if elem, ok := c.entries[query]; ok {
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&stmtCacheEntry{query: query, stmt: stmt})
	c.entries[query] = elem

	if c.order.Len() <= c.capacity {
		return nil
	}

	oldest := c.order.Back()
	c.order.Remove(oldest)
	entry := oldest.Value.(*stmtCacheEntry)
	delete(c.entries, entry.query)
	return entry.stmt
}

// drain empties the cache, returning every statement still held so the
// caller can issue COM_STMT_CLOSE for each (spec §4.7 shutdown).
func (c *stmtCache) drain() []*Statement {
	stmts := make([]*Statement, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		stmts = append(stmts, e.Value.(*stmtCacheEntry).stmt)
	}
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	return stmts
}
