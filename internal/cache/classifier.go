package cache

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// BlockDescriptor describes one byte range of a file held by a cache.
type BlockDescriptor struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
	Loaded bool   `json:"loaded"`
}

// End returns the exclusive end offset of the block.
func (b BlockDescriptor) End() uint64 {
	return saturatingAdd(b.Offset, b.Length)
}

// compareBlocks orders descriptors by path, offset, length, then loaded
// with false first.
func compareBlocks(a, b BlockDescriptor) int {
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Offset, b.Offset); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Length, b.Length); c != 0 {
		return c
	}
	switch {
	case a.Loaded == b.Loaded:
		return 0
	case !a.Loaded:
		return -1
	default:
		return 1
	}
}

// BlockSource reports the blocks currently held by a cache.
type BlockSource interface {
	CachedBlocks() []BlockDescriptor
}

// AccessResult is the classification of one read request.
type AccessResult int

const (
	AccessMiss AccessResult = iota
	AccessPartialHit
	AccessHit
	// AccessDisabled is returned while classification is disabled.
	AccessDisabled
)

func (r AccessResult) String() string {
	switch r {
	case AccessMiss:
		return "miss"
	case AccessPartialHit:
		return "partial_hit"
	case AccessHit:
		return "hit"
	case AccessDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// AccessRecord counts classified read requests.
type AccessRecord struct {
	Hits        uint64 `json:"cache_hit_count"`
	Misses      uint64 `json:"cache_miss_count"`
	PartialHits uint64 `json:"cache_partial_hit_count"`
}

// Total returns the number of classified requests.
func (r AccessRecord) Total() uint64 {
	return r.Hits + r.Misses + r.PartialHits
}

// ClassifierConfig controls how often the snapshot is refreshed.
type ClassifierConfig struct {
	// LargeSnapshotThreshold is the snapshot size above which
	// LargeRefreshInterval applies instead of SmallRefreshInterval.
	LargeSnapshotThreshold int    `yaml:"large_snapshot_threshold"`
	SmallRefreshInterval   uint64 `yaml:"small_refresh_interval"`
	LargeRefreshInterval   uint64 `yaml:"large_refresh_interval"`
}

// DefaultClassifierConfig returns the default refresh cadence.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		LargeSnapshotThreshold: 64,
		SmallRefreshInterval:   4,
		LargeRefreshInterval:   32,
	}
}

// blockSnapshot is immutable once published.
type blockSnapshot struct {
	blocks []BlockDescriptor
	// maxLength bounds how far back a covering block can start.
	maxLength uint64
}

func newBlockSnapshot(blocks []BlockDescriptor) *blockSnapshot {
	slices.SortFunc(blocks, compareBlocks)
	snap := &blockSnapshot{blocks: blocks}
	for _, b := range blocks {
		snap.maxLength = max(snap.maxLength, b.Length)
	}
	return snap
}

// Classifier classifies read requests against a snapshot of cached blocks
// as hit, partial hit or miss. The snapshot is refreshed from a BlockSource
// every few accesses and swapped atomically, so classification never waits
// on a refresh.
type Classifier struct {
	mu       sync.Mutex
	config   ClassifierConfig
	source   BlockSource
	accesses uint64
	record   AccessRecord

	// generation changes with every SetSource.
	generation uint64

	enabled    atomic.Bool
	refreshing atomic.Bool
	snapshot   atomic.Pointer[blockSnapshot]

	logger logrus.FieldLogger
}

// NewClassifier creates an enabled classifier reading from source, which may
// be nil until SetSource is called. Zero values in cfg take the defaults.
func NewClassifier(source BlockSource, cfg ClassifierConfig, logger logrus.FieldLogger) *Classifier {
	def := DefaultClassifierConfig()
	if cfg.LargeSnapshotThreshold <= 0 {
		cfg.LargeSnapshotThreshold = def.LargeSnapshotThreshold
	}
	if cfg.SmallRefreshInterval == 0 {
		cfg.SmallRefreshInterval = def.SmallRefreshInterval
	}
	if cfg.LargeRefreshInterval == 0 {
		cfg.LargeRefreshInterval = def.LargeRefreshInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	c := &Classifier{
		config: cfg,
		source: source,
		logger: logger.WithField("component", "cache-classifier"),
	}
	c.enabled.Store(true)
	c.snapshot.Store(&blockSnapshot{})
	return c
}

// Enable turns classification on.
func (c *Classifier) Enable() {
	c.enabled.Store(true)
}

// Disable turns classification off; ClassifyAndRecord becomes a no-op.
func (c *Classifier) Disable() {
	c.enabled.Store(false)
}

// Enabled reports whether classification is on.
func (c *Classifier) Enabled() bool {
	return c.enabled.Load()
}

// SetSource replaces the block source and drops the current snapshot.
func (c *Classifier) SetSource(source BlockSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
	c.accesses = 0
	c.generation++
	c.snapshot.Store(&blockSnapshot{})
}

// ClassifyAndRecord classifies a read of length bytes at offset in path,
// counts the result and refreshes the snapshot when due.
func (c *Classifier) ClassifyAndRecord(path string, offset, length uint64) AccessResult {
	if !c.enabled.Load() {
		return AccessDisabled
	}

	snap := c.snapshot.Load()
	result := snap.classify(path, offset, length)

	c.mu.Lock()
	switch result {
	case AccessHit:
		c.record.Hits++
	case AccessPartialHit:
		c.record.PartialHits++
	default:
		c.record.Misses++
	}
	c.accesses++
	interval := c.config.SmallRefreshInterval
	if len(snap.blocks) > c.config.LargeSnapshotThreshold {
		interval = c.config.LargeRefreshInterval
	}
	due := c.accesses%interval == 0
	c.mu.Unlock()

	if due {
		c.Refresh()
	}
	return result
}

// Classify returns the classification of a read without counting it.
func (c *Classifier) Classify(path string, offset, length uint64) AccessResult {
	return c.snapshot.Load().classify(path, offset, length)
}

// Refresh pulls the blocks from the source and publishes them as the new
// snapshot. A refresh already in flight makes this call a no-op.
func (c *Classifier) Refresh() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	defer c.refreshing.Store(false)

	c.mu.Lock()
	source, generation := c.source, c.generation
	c.mu.Unlock()
	if source == nil {
		return
	}

	snap := newBlockSnapshot(slices.Clone(source.CachedBlocks()))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		// The source was replaced while its blocks were being read.
		return
	}
	c.snapshot.Store(snap)

	c.logger.WithField("blocks", len(snap.blocks)).Debug("Refreshed cache block snapshot")
}

// SnapshotSize returns the number of blocks in the current snapshot.
func (c *Classifier) SnapshotSize() int {
	return len(c.snapshot.Load().blocks)
}

// Record returns the access counters.
func (c *Classifier) Record() AccessRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

// AccessCounts returns the hit, miss and partial hit counters.
func (c *Classifier) AccessCounts() (hits, misses, partialHits uint64) {
	r := c.Record()
	return r.Hits, r.Misses, r.PartialHits
}

// Clear zeroes the access counters. The snapshot is kept.
func (c *Classifier) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record = AccessRecord{}
}

// classify looks at the blocks of path starting inside the request and at
// every earlier block that may still reach it, so blocks may overlap or
// nest. The strongest classification wins.
func (s *blockSnapshot) classify(path string, offset, length uint64) AccessResult {
	key := BlockDescriptor{Path: path, Offset: offset, Length: length}
	i, _ := slices.BinarySearchFunc(s.blocks, key, compareBlocks)

	reqEnd := saturatingAdd(offset, length)

	best := AccessMiss
	for j := i; j < len(s.blocks) && best != AccessHit; j++ {
		b := s.blocks[j]
		// Blocks starting after the request offset can only partially cover it.
		if b.Path != path || b.Offset >= reqEnd || (best != AccessMiss && b.Offset > offset) {
			break
		}
		best = max(best, overlap(b, path, offset, length))
	}
	for j := i - 1; j >= 0 && best != AccessHit; j-- {
		b := s.blocks[j]
		if b.Path != path || saturatingAdd(b.Offset, s.maxLength) <= offset {
			break
		}
		best = max(best, overlap(b, path, offset, length))
	}
	return best
}

func overlap(b BlockDescriptor, path string, offset, length uint64) AccessResult {
	if b.Path != path || !b.Loaded {
		return AccessMiss
	}
	reqEnd := saturatingAdd(offset, length)
	blockEnd := b.End()

	if offset >= blockEnd || reqEnd <= b.Offset {
		return AccessMiss
	}
	if offset >= b.Offset && reqEnd <= blockEnd {
		return AccessHit
	}
	return AccessPartialHit
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
