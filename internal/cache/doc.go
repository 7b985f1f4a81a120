/*
Package cache holds file blocks in memory and classifies read requests
against the blocks a cache reports.

# Block Cache

BlockCache stores fixed-size, aligned blocks keyed by path and offset. It is
bounded both by entry count (least recently used first) and by total bytes:

	cache, err := cache.NewBlockCache(&cache.CacheConfig{
		MaxSize:    256 * 1024 * 1024,
		MaxEntries: 4096,
		BlockSize:  1024 * 1024,
		TTL:        5 * time.Minute,
	})

Blocks being fetched are registered with MarkLoading and reported by
CachedBlocks with Loaded set to false until Put stores their data.

# Access Classification

Classifier keeps an immutable, sorted snapshot of the blocks reported by a
BlockSource and classifies every read:

	┌──────────────┐  CachedBlocks()  ┌──────────────┐
	│  BlockCache  │ ───────────────▶ │  Classifier  │
	└──────────────┘   every N reads  └──────┬───────┘
	                                         │ ClassifyAndRecord(path, off, len)
	                                         ▼
	                              hit / partial hit / miss

A request is a hit when a loaded block of the same path contains it, a
partial hit when it overlaps one, and a miss otherwise. The snapshot is
refreshed every 4 classified reads, or every 32 once it holds more than 64
blocks; see ClassifierConfig.

Classification reads the snapshot through an atomic pointer and never waits
for a refresh. Counters are kept under a mutex and can be cleared without
touching the snapshot.
*/
package cache
