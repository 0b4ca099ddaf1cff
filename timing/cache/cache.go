// Package cache provides set-associative cache modeling on top of the
// Akita cache directory components.
package cache

import (
	"strings"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Policy selects the replacement policy.
type Policy uint8

// Replacement policies.
const (
	PolicyLRU Policy = iota
	PolicyPLRU
	PolicyRandom
)

// ParsePolicy maps a configuration string to a Policy. Unknown names
// fall back to LRU.
func ParsePolicy(name string) Policy {
	switch strings.ToLower(name) {
	case "plru":
		return PolicyPLRU
	case "random":
		return PolicyRandom
	default:
		return PolicyLRU
	}
}

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes.
	Size int
	// Associativity (number of ways).
	Associativity int
	// BlockSize in bytes (cache line size).
	BlockSize int
	// Policy selects the victim among valid ways.
	Policy Policy
	// HitLatency in cycles.
	HitLatency uint64
	// MissLatency in cycles (includes the memory round trip).
	MissLatency uint64
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the data read (for load operations).
	Data uint64
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns the fraction of accesses that hit.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BackingStore is the next level in the memory hierarchy.
type BackingStore interface {
	// Read fetches data from the backing store.
	Read(addr uint64, size int) []byte
	// Write stores data to the backing store.
	Write(addr uint64, data []byte)
}

// Cache is a write-back, write-allocate set-associative cache. Tag and
// state tracking uses the Akita cache directory; the victim finder is
// chosen by the replacement policy.
type Cache struct {
	config Config

	directory *akitacache.DirectoryImpl
	tracker   accessTracker

	// Data storage, indexed by setID*associativity + wayID.
	dataStore [][]byte

	backing BackingStore
	stats   Statistics
}

// accessTracker is implemented by victim finders that need to observe
// accesses (tree-PLRU). The LRU finder relies on the directory's own
// visit order and the random finder needs nothing.
type accessTracker interface {
	Touch(block *akitacache.Block)
}

// New creates a cache with the given configuration over backing.
func New(config Config, backing BackingStore) *Cache {
	numSets := config.Size / (config.Associativity * config.BlockSize)
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	var finder akitacache.VictimFinder
	var tracker accessTracker
	switch config.Policy {
	case PolicyPLRU:
		plru := newPLRUVictimFinder(config.Associativity)
		finder, tracker = plru, plru
	case PolicyRandom:
		finder = newRandomVictimFinder()
	default:
		finder = akitacache.NewLRUVictimFinder()
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			finder,
		),
		tracker:   tracker,
		dataStore: dataStore,
		backing:   backing,
	}
}

// Config returns the cache configuration.
func (c *Cache) Config() Config { return c.config }

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics { return c.stats }

func (c *Cache) blockIndex(block *akitacache.Block) int {
	return block.SetID*c.config.Associativity + block.WayID
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return addr / uint64(c.config.BlockSize) * uint64(c.config.BlockSize)
}

func (c *Cache) visit(block *akitacache.Block) {
	c.directory.Visit(block)
	if c.tracker != nil {
		c.tracker.Touch(block)
	}
}

// Read performs a cache read of size bytes at addr. The access must not
// cross a line boundary; the LSU splits such accesses beforehand.
func (c *Cache) Read(addr uint64, size int) AccessResult {
	c.stats.Reads++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.visit(block)
		offset := addr % uint64(c.config.BlockSize)
		data := extractData(c.dataStore[c.blockIndex(block)], offset, size)
		return AccessResult{Hit: true, Latency: c.config.HitLatency, Data: data}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, false, 0)
}

// Write performs a cache write. Write-allocate: a miss fetches the line
// before merging the store data.
func (c *Cache) Write(addr uint64, size int, data uint64) AccessResult {
	c.stats.Writes++

	blockAddr := c.blockAddr(addr)
	block := c.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		c.stats.Hits++
		c.visit(block)
		offset := addr % uint64(c.config.BlockSize)
		storeData(c.dataStore[c.blockIndex(block)], offset, size, data)
		block.IsDirty = true
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	return c.handleMiss(addr, size, true, data)
}

// handleMiss refills the line from the backing store, evicting and
// writing back a dirty victim first.
func (c *Cache) handleMiss(addr uint64, size int, isWrite bool, writeData uint64) AccessResult {
	result := AccessResult{Latency: c.config.MissLatency}

	blockAddr := c.blockAddr(addr)
	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	victimData := c.dataStore[c.blockIndex(victim)]
	if victim.IsValid {
		c.stats.Evictions++
		if victim.IsDirty && c.backing != nil {
			c.stats.Writebacks++
			c.backing.Write(victim.Tag, victimData)
		}
	}

	if c.backing != nil {
		copy(victimData, c.backing.Read(blockAddr, c.config.BlockSize))
	} else {
		for i := range victimData {
			victimData[i] = 0
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	offset := addr % uint64(c.config.BlockSize)
	if isWrite {
		storeData(victimData, offset, size, writeData)
		victim.IsDirty = true
	} else {
		result.Data = extractData(victimData, offset, size)
	}

	c.visit(victim)
	return result
}

// InvalidateAll drops every line without writeback. FENCE.I uses this
// on the I-cache, which is never dirty.
func (c *Cache) InvalidateAll() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Flush writes back every dirty line and invalidates the cache.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && c.backing != nil {
				c.stats.Writebacks++
				c.backing.Write(block.Tag, c.dataStore[c.blockIndex(block)])
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// extractData reads a little-endian value of the given size from a line.
func extractData(data []byte, offset uint64, size int) uint64 {
	if int(offset)+size > len(data) {
		return 0
	}
	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

// storeData merges a little-endian value of the given size into a line.
func storeData(data []byte, offset uint64, size int, value uint64) {
	if int(offset)+size > len(data) {
		return
	}
	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
