package intent

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/caresearch/medrank/internal/rank"
)

// DefaultCacheSize is the LRU capacity for understanding results. Entries
// are small (one SessionContext each); repeated queries within a session
// hit constantly.
const DefaultCacheSize = 2048

// cacheEntry stores a successfully merged context together with its
// insights. Fallback-tainted results are never cached so a transient LLM
// outage does not pin degraded contexts.
type cacheEntry struct {
	sctx     *rank.SessionContext
	insights *Insights
}

// contextCache wraps the LRU with key normalization.
type contextCache struct {
	inner *lru.Cache[string, cacheEntry]
}

func newContextCache(size int) *contextCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, _ := lru.New[string, cacheEntry](size)
	return &contextCache{inner: cache}
}

// key builds the lookup key from the query and conversation, lowercased
// and whitespace-normalized so trivial rephrasings share an entry.
func (c *contextCache) key(p Params) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.Join(strings.Fields(p.Query), " ")))
	for _, t := range p.Conversation {
		b.WriteByte('\x1f')
		b.WriteString(strings.ToLower(t.Role))
		b.WriteByte(':')
		b.WriteString(strings.ToLower(strings.Join(strings.Fields(t.Content), " ")))
	}
	if p.IncludeIdealProfile {
		b.WriteString("\x1fv5")
	}
	return b.String()
}

func (c *contextCache) get(key string) (cacheEntry, bool) {
	if c == nil || c.inner == nil {
		return cacheEntry{}, false
	}
	return c.inner.Get(key)
}

func (c *contextCache) add(key string, entry cacheEntry) {
	if c == nil || c.inner == nil {
		return
	}
	c.inner.Add(key, entry)
}

// Len reports the number of cached contexts.
func (c *contextCache) len() int {
	if c == nil || c.inner == nil {
		return 0
	}
	return c.inner.Len()
}
