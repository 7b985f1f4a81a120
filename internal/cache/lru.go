package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// CacheConfig represents block cache configuration.
type CacheConfig struct {
	MaxSize    int64         `yaml:"max_size"`
	MaxEntries int           `yaml:"max_entries"`
	BlockSize  int64         `yaml:"block_size"`
	TTL        time.Duration `yaml:"ttl"`
}

// DefaultCacheConfig returns the default block cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		MaxSize:    256 * 1024 * 1024, // 256MB
		MaxEntries: 4096,
		BlockSize:  1024 * 1024, // 1MB
		TTL:        5 * time.Minute,
	}
}

// CacheStats represents block cache statistics.
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	Entries     int     `json:"entries"`
	Loading     int     `json:"loading"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

type blockKey struct {
	path   string
	offset int64
}

type cacheItem struct {
	path     string
	offset   int64
	length   int64
	data     []byte
	loaded   bool
	storedAt time.Time
}

// BlockCache is an in-memory cache of file blocks bounded by entry count
// and total bytes. Entries are evicted least recently used first. Blocks
// that are being fetched can be registered with MarkLoading so that they
// are reported, unloaded, by CachedBlocks.
type BlockCache struct {
	mu          sync.Mutex
	config      *CacheConfig
	lru         *simplelru.LRU
	currentSize int64
	stats       CacheStats
	now         func() time.Time
}

// NewBlockCache creates a block cache. A nil config uses the defaults.
func NewBlockCache(config *CacheConfig) (*BlockCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if config.MaxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", config.MaxEntries)
	}
	if config.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", config.BlockSize)
	}

	c := &BlockCache{
		config: config,
		now:    time.Now,
		stats:  CacheStats{Capacity: config.MaxSize},
	}
	l, err := simplelru.NewLRU(config.MaxEntries, c.onRemove)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// onRemove runs for every entry leaving the LRU while c.mu is held.
func (c *BlockCache) onRemove(_, value interface{}) {
	item := value.(*cacheItem)
	c.currentSize -= int64(len(item.data))
}

// BlockSize returns the block alignment used by callers.
func (c *BlockCache) BlockSize() int64 {
	return c.config.BlockSize
}

// Get returns a copy of the loaded block at offset in path.
func (c *BlockCache) Get(path string, offset int64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := blockKey{path: path, offset: offset}
	v, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	item := v.(*cacheItem)
	if !item.loaded || c.isExpired(item) {
		if item.loaded {
			c.lru.Remove(key)
		}
		c.stats.Misses++
		c.updateHitRate()
		return nil, false
	}

	c.stats.Hits++
	c.updateHitRate()

	result := make([]byte, len(item.data))
	copy(result, item.data)
	return result, true
}

// MarkLoading registers a block that is being fetched. It does not replace
// a block that is already loaded.
func (c *BlockCache) MarkLoading(path string, offset, length int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := blockKey{path: path, offset: offset}
	if v, ok := c.lru.Peek(key); ok && v.(*cacheItem).loaded {
		return
	}
	if c.lru.Add(key, &cacheItem{path: path, offset: offset, length: length, storedAt: c.now()}) {
		c.stats.Evictions++
	}
}

// Put stores a loaded block.
func (c *BlockCache) Put(path string, offset int64, data []byte) {
	if len(data) == 0 {
		return
	}
	size := int64(len(data))
	key := blockKey{path: path, offset: offset}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Contains(key) {
		c.lru.Remove(key)
	}
	if c.config.MaxSize > 0 && size > c.config.MaxSize {
		return
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	item := &cacheItem{
		path:     path,
		offset:   offset,
		length:   size,
		data:     stored,
		loaded:   true,
		storedAt: c.now(),
	}
	if c.lru.Add(key, item) {
		c.stats.Evictions++
	}
	c.currentSize += size
	c.evictIfNeeded()
}

// Forget drops a block, typically after its fetch failed.
func (c *BlockCache) Forget(path string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(blockKey{path: path, offset: offset})
}

// Delete removes all blocks of path.
func (c *BlockCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range c.lru.Keys() {
		if k.(blockKey).path == path {
			c.lru.Remove(k)
		}
	}
}

// Clear removes every block and resets the statistics.
func (c *BlockCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.currentSize = 0
	c.stats = CacheStats{Capacity: c.config.MaxSize}
}

// Stats returns cache statistics.
func (c *BlockCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.currentSize
	stats.Entries = c.lru.Len()
	for _, k := range c.lru.Keys() {
		if v, ok := c.lru.Peek(k); ok && !v.(*cacheItem).loaded {
			stats.Loading++
		}
	}
	if c.config.MaxSize > 0 {
		stats.Utilization = float64(c.currentSize) / float64(c.config.MaxSize)
	}
	return stats
}

// Usage returns the resident bytes and entry count.
func (c *BlockCache) Usage() (int64, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize, c.lru.Len()
}

// CachedBlocks reports every unexpired block, sorted by path and offset.
func (c *BlockCache) CachedBlocks() []BlockDescriptor {
	c.mu.Lock()
	blocks := make([]BlockDescriptor, 0, c.lru.Len())
	for _, k := range c.lru.Keys() {
		v, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		item := v.(*cacheItem)
		if item.loaded && c.isExpired(item) {
			continue
		}
		blocks = append(blocks, BlockDescriptor{
			Path:   item.path,
			Offset: uint64(item.offset),
			Length: uint64(item.length),
			Loaded: item.loaded,
		})
	}
	c.mu.Unlock()

	sort.Slice(blocks, func(i, j int) bool {
		return compareBlocks(blocks[i], blocks[j]) < 0
	})
	return blocks
}

func (c *BlockCache) isExpired(item *cacheItem) bool {
	if c.config.TTL <= 0 {
		return false
	}
	return c.now().Sub(item.storedAt) > c.config.TTL
}

func (c *BlockCache) evictIfNeeded() {
	if c.config.MaxSize <= 0 {
		return
	}
	for c.currentSize > c.config.MaxSize {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			return
		}
		c.stats.Evictions++
	}
}

func (c *BlockCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
