package feed

import (
	"container/list"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	defaultFeedCacheEntries = 256
	feedCacheTTL            = 8 * 24 * time.Hour
)

// cachedFeed is the last successfully parsed download of a feed URL together with its
// HTTP cache validators.
type cachedFeed struct {
	etag         string
	lastModified string
	entries      []*gofeed.Item
}

func (c cachedFeed) conditional() bool {
	return c.etag != "" || c.lastModified != ""
}

// feedCache is a bounded LRU keyed by feed URL. Entries expire so every feed is fully
// downloaded at least once per expiry period.
type feedCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
}

type feedCacheEntry struct {
	key       string
	feed      cachedFeed
	expiresAt time.Time
}

// newFeedCache returns nil when maxEntries is negative, which disables conditional
// requests.
func newFeedCache(maxEntries int) *feedCache {
	if maxEntries < 0 {
		return nil
	}

	if maxEntries == 0 {
		maxEntries = defaultFeedCacheEntries
	}

	return &feedCache{
		entries:    make(map[string]*list.Element, maxEntries),
		order:      list.New(),
		maxEntries: maxEntries,
	}
}

func (c *feedCache) get(key string, now time.Time) (cachedFeed, bool) {
	if c == nil || key == "" {
		return cachedFeed{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return cachedFeed{}, false
	}

	entry, ok := elem.Value.(*feedCacheEntry)
	if !ok {
		return cachedFeed{}, false
	}

	if now.After(entry.expiresAt) {
		c.removeElement(elem)

		return cachedFeed{}, false
	}

	c.order.MoveToFront(elem)

	return entry.feed, true
}

// set drops the key when the response carried no validators.
func (c *feedCache) set(key string, feed cachedFeed, now time.Time) {
	if c == nil || key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !feed.conditional() {
		if elem, ok := c.entries[key]; ok {
			c.removeElement(elem)
		}

		return
	}

	expiresAt := now.Add(feedCacheTTL)

	if elem, ok := c.entries[key]; ok {
		entry, castOk := elem.Value.(*feedCacheEntry)
		if !castOk {
			return
		}

		entry.feed = feed
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)

		return
	}

	elem := c.order.PushFront(&feedCacheEntry{
		key:       key,
		feed:      feed,
		expiresAt: expiresAt,
	})
	c.entries[key] = elem

	c.evictExpiredLocked(now)
	c.enforceSizeLimitLocked()
}

func (c *feedCache) evictExpiredLocked(now time.Time) {
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()

		if entry, ok := elem.Value.(*feedCacheEntry); ok && now.After(entry.expiresAt) {
			c.removeElement(elem)
		}
		elem = prev
	}
}

func (c *feedCache) enforceSizeLimitLocked() {
	for len(c.entries) > c.maxEntries {
		elem := c.order.Back()
		if elem == nil {
			return
		}
		c.removeElement(elem)
	}
}

func (c *feedCache) removeElement(elem *list.Element) {
	entry, ok := elem.Value.(*feedCacheEntry)
	if !ok {
		return
	}

	delete(c.entries, entry.key)
	c.order.Remove(elem)
}
