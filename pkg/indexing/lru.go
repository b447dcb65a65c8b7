package indexing

import (
	"container/list"
	"strings"
	"sync"
)

// LRUCache holds built indexes keyed by table, field and version.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	list     *list.List
	cache    map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value *Index
}

func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		list:     list.New(),
		cache:    make(map[string]*list.Element),
	}
}

func (lru *LRUCache) Get(key string) (*Index, bool) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if element, exists := lru.cache[key]; exists {
		lru.list.MoveToFront(element)
		return element.Value.(*cacheEntry).value, true
	}
	return nil, false
}

func (lru *LRUCache) Put(key string, idx *Index) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if element, exists := lru.cache[key]; exists {
		element.Value.(*cacheEntry).value = idx
		lru.list.MoveToFront(element)
		return
	}

	element := lru.list.PushFront(&cacheEntry{key: key, value: idx})
	lru.cache[key] = element

	if lru.list.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *LRUCache) evictOldest() {
	element := lru.list.Back()
	if element != nil {
		entry := element.Value.(*cacheEntry)
		delete(lru.cache, entry.key)
		lru.list.Remove(element)
	}
}

// RemovePrefix evicts every entry whose key starts with prefix.
func (lru *LRUCache) RemovePrefix(prefix string) {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	for key, element := range lru.cache {
		if strings.HasPrefix(key, prefix) {
			delete(lru.cache, key)
			lru.list.Remove(element)
		}
	}
}

func (lru *LRUCache) Capacity() int {
	return lru.capacity
}

func (lru *LRUCache) Len() int {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	return lru.list.Len()
}
