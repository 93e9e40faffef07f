package memory

import (
	"sync"

	"github.com/p-blackswan/repo-maintainer/internal/models"
)

// profileCacheSize bounds the in-process cache. Profiles written this run are
// served from memory when the workflow falls back to a stored profile, so
// repeat reads in watch mode skip the database.
const profileCacheSize = 256

// cacheNode is a doubly linked list node holding one cached profile.
type cacheNode struct {
	repo    string
	profile *models.RepositoryProfile
	prev    *cacheNode
	next    *cacheNode
}

// profileCache is a thread-safe LRU of repository profiles keyed by full
// name. A hash map gives O(1) lookup; the linked list orders eviction.
type profileCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*cacheNode
	head     *cacheNode // most recently used (sentinel)
	tail     *cacheNode // least recently used (sentinel)
}

func newProfileCache(capacity int) *profileCache {
	if capacity < 1 {
		capacity = 1
	}
	head := &cacheNode{}
	tail := &cacheNode{}
	head.next = tail
	tail.prev = head
	return &profileCache{
		capacity: capacity,
		items:    make(map[string]*cacheNode, capacity),
		head:     head,
		tail:     tail,
	}
}

func (c *profileCache) get(repo string) (*models.RepositoryProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[repo]
	if !ok {
		return nil, false
	}
	c.unlink(n)
	c.pushFront(n)
	return n.profile, true
}

func (c *profileCache) put(repo string, profile *models.RepositoryProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[repo]; ok {
		n.profile = profile
		c.unlink(n)
		c.pushFront(n)
		return
	}

	if len(c.items) >= c.capacity {
		oldest := c.tail.prev
		c.unlink(oldest)
		delete(c.items, oldest.repo)
	}

	n := &cacheNode{repo: repo, profile: profile}
	c.items[repo] = n
	c.pushFront(n)
}

func (c *profileCache) remove(repo string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[repo]; ok {
		c.unlink(n)
		delete(c.items, repo)
	}
}

func (c *profileCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *profileCache) unlink(n *cacheNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (c *profileCache) pushFront(n *cacheNode) {
	n.prev = c.head
	n.next = c.head.next
	c.head.next.prev = n
	c.head.next = n
}
