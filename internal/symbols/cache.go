package symbols

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies one parse result by the content identity the Journal
// Store already uses elsewhere in the core: path, size, mtime, and CRC32C
// (spec §4.8 "keyed by (path, size, mtime, crc)").
type cacheKey struct {
	path  string
	size  int64
	mtime int64
	crc   uint32
}

// parseResult is a cached parse: its symbols plus enough of the tree-sitter
// state to answer symbolsAt without re-parsing for the same key.
type parseResult struct {
	language Language
	symbols  []Symbol
	content  []byte
}

const defaultCacheSize = 512

// parseCache is process-wide (spec §5 "The parse cache is process-wide but
// keyed by (path, mtime, size, crc), so cross-task reads are safe") and
// tracks the most recent key used for each path so Invalidate can evict a
// stale entry immediately after a commit instead of waiting for the key to
// simply stop matching.
type parseCache struct {
	mu      sync.Mutex
	entries *lru.Cache[cacheKey, *parseResult]
	lastKey map[string]cacheKey
}

func newParseCache(size int) *parseCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, _ := lru.New[cacheKey, *parseResult](size)
	return &parseCache{entries: c, lastKey: make(map[string]cacheKey)}
}

func (c *parseCache) get(key cacheKey) (*parseResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key)
}

func (c *parseCache) put(key cacheKey, res *parseResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, res)
	c.lastKey[key.path] = key
}

// invalidate drops the cached parse for path, if any (spec §4.8 "invalidated
// by the Transaction Manager after any commit").
func (c *parseCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key, ok := c.lastKey[path]; ok {
		c.entries.Remove(key)
		delete(c.lastKey, path)
	}
}
