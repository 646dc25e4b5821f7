package store

import (
	"log"
	"sync"

	"github.com/raida-net/coinnode/internal/protocol"
)

// cacheKey identifies a cached page by denomination and page number.
type cacheKey struct {
	den    protocol.Denomination
	pageNo uint32
}

// Cache is a hash-indexed LRU of pages bounded to MaxPages. It is the
// sole owner of the hash table and the LRU linked list; everything under
// those structures is guarded by mu. Individual page mutexes are never
// held while mu is held, except for the brief relink steps described in
// spec.md §4.B — cache_mutex strictly precedes page.mutex, and no
// goroutine holds both at once beyond that relinking.
type Cache struct {
	mu       sync.Mutex
	layout   Layout
	maxPages int
	index    map[cacheKey]*Page
	head     *Page // most recently used
	tail     *Page // least recently used
	logger   *log.Logger
	stats    *Stats
}

// NewCache constructs a Cache bounded to maxPages entries.
func NewCache(layout Layout, maxPages int, logger *log.Logger, stats *Stats) *Cache {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Cache{
		layout:   layout,
		maxPages: maxPages,
		index:    make(map[cacheKey]*Page, maxPages*2+1),
		logger:   logger,
		stats:    stats,
	}
}

// Get returns the page (den, pageNo), locked for the caller's
// exclusive use. The caller must call Release when done and must not
// retain the pointer afterward. Get never blocks on a page mutex while
// holding the cache mutex.
func (c *Cache) Get(den protocol.Denomination, pageNo uint32) (*Page, error) {
	key := cacheKey{den, pageNo}

	c.mu.Lock()
	if p, ok := c.index[key]; ok {
		c.moveToFront(p)
		c.mu.Unlock()
		c.stats.recordHit()
		p.Lock()
		return p, nil
	}
	c.stats.recordMiss()

	var victim *Page
	if len(c.index) >= c.maxPages && c.tail != nil {
		victim = c.tail
		c.detach(victim)
		delete(c.index, cacheKey{victim.Den, victim.PageNo})
		victim.inCache = false
	}

	loaded, err := c.layout.loadFromDisk(den, pageNo)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	loaded.inCache = true
	c.index[key] = loaded
	c.pushFront(loaded)
	c.mu.Unlock()

	// Flush of the victim happens outside cache_mutex: flush takes the
	// victim's own mutex and performs disk I/O, and holding cache_mutex
	// across that would invert the lock order against handlers that take
	// cache_mutex then a page mutex.
	if victim != nil {
		victim.Lock()
		if victim.Dirty() {
			if err := c.layout.flushToDisk(victim, c.logger); err != nil {
				c.stats.recordFlushFailure()
				if c.logger != nil {
					c.logger.Printf("store: eviction flush failed for den=%d page=%d, data may be stale on disk: %v", victim.Den, victim.PageNo, err)
				}
			} else {
				c.stats.recordFlush()
			}
		}
		victim.Unlock()
		c.stats.recordEviction()
	}

	loaded.Lock()
	return loaded, nil
}

// Release unlocks a page obtained from Get.
func (c *Cache) Release(p *Page) { p.Unlock() }

// Len returns the number of pages currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// DirtySnapshot returns a snapshot of currently dirty pages' pointers,
// taken under the cache mutex, for the background flusher (spec.md
// §4.E). The slice is bounded implicitly by MaxPages.
func (c *Cache) DirtySnapshot() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Page, 0, len(c.index))
	for _, p := range c.index {
		if p.dirty {
			out = append(out, p)
		}
	}
	return out
}

// Flush flushes a single page to disk, taking its mutex.
func (c *Cache) Flush(p *Page) error {
	p.Lock()
	defer p.Unlock()
	if !p.dirty {
		return nil
	}
	err := c.layout.flushToDisk(p, c.logger)
	if err != nil {
		c.stats.recordFlushFailure()
	} else {
		c.stats.recordFlush()
	}
	return err
}

// --- LRU list management; caller must hold c.mu ---

func (c *Cache) pushFront(p *Page) {
	p.prev = nil
	p.next = c.head
	if c.head != nil {
		c.head.prev = p
	}
	c.head = p
	if c.tail == nil {
		c.tail = p
	}
}

func (c *Cache) detach(p *Page) {
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		c.head = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		c.tail = p.prev
	}
	p.prev, p.next = nil, nil
}

func (c *Cache) moveToFront(p *Page) {
	if c.head == p {
		return
	}
	c.detach(p)
	c.pushFront(p)
}
