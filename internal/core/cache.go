package core

import (
	"context"
	"nli-data/internal/core/dataset"
	"nli-data/internal/core/utils"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxConcurrentLoads = 1024

type SplitLoader func(ctx context.Context, corpusId uuid.UUID) (dataset.Split, error)

type splitEntry struct {
	split        dataset.Split
	lastAccessed time.Time
}

// DatasetCache keeps the most recently used corpora in memory. Loads for the
// same corpus are serialized so each corpus is built at most once.
type DatasetCache struct {
	lock    sync.Mutex
	entries map[uuid.UUID]*splitEntry
	maxSize int

	loading *utils.MutexMap
	load    SplitLoader
}

func NewDatasetCache(maxSize int, load SplitLoader) *DatasetCache {
	return &DatasetCache{
		entries: make(map[uuid.UUID]*splitEntry, maxSize),
		maxSize: max(maxSize, 1),
		loading: utils.NewMutexMap(maxConcurrentLoads),
		load:    load,
	}
}

func (c *DatasetCache) lookup(corpusId uuid.UUID) (dataset.Split, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	entry, ok := c.entries[corpusId]
	if !ok {
		return dataset.Split{}, false
	}
	entry.lastAccessed = time.Now()
	return entry.split, true
}

func (c *DatasetCache) Get(ctx context.Context, corpusId uuid.UUID) (dataset.Split, error) {
	if split, ok := c.lookup(corpusId); ok {
		return split, nil
	}

	key := corpusId.String()
	if err := c.loading.Lock(key); err != nil {
		return dataset.Split{}, err
	}
	defer c.loading.Unlock(key) //nolint:errcheck

	// another caller may have finished loading while we waited
	if split, ok := c.lookup(corpusId); ok {
		return split, nil
	}

	split, err := c.load(ctx, corpusId)
	if err != nil {
		return dataset.Split{}, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[corpusId] = &splitEntry{split: split, lastAccessed: time.Now()}

	return split, nil
}

func (c *DatasetCache) evictOldest() {
	oldestId := uuid.Nil
	var oldestTime time.Time
	for id, entry := range c.entries {
		if oldestId == uuid.Nil || entry.lastAccessed.Before(oldestTime) {
			oldestId = id
			oldestTime = entry.lastAccessed
		}
	}
	delete(c.entries, oldestId)
}

func (c *DatasetCache) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.entries)
}
