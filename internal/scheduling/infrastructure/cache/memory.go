package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// MemoryCache is an in-process LRU ports.IdempotencyCache for local mode,
// bounded to capacity entries with per-entry TTL expiry checked on read.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	entries  map[string]*list.Element
}

type memoryCacheEntry struct {
	key       string
	solution  *domain.ScheduleSolution
	expiresAt time.Time
}

// NewMemoryCache builds an LRU cache holding at most capacity entries.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryCache{
		capacity: capacity,
		ll:       list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *MemoryCache) Get(ctx context.Context, requestHash string) (*domain.ScheduleSolution, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[requestHash]
	if !ok {
		return nil, false, nil
	}
	entry := el.Value.(*memoryCacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.entries, requestHash)
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	return entry.solution, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, requestHash string, solution *domain.ScheduleSolution, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[requestHash]; ok {
		el.Value.(*memoryCacheEntry).solution = solution
		el.Value.(*memoryCacheEntry).expiresAt = time.Now().Add(ttl)
		c.ll.MoveToFront(el)
		return nil
	}

	el := c.ll.PushFront(&memoryCacheEntry{key: requestHash, solution: solution, expiresAt: time.Now().Add(ttl)})
	c.entries[requestHash] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryCacheEntry).key)
	}
	return nil
}
