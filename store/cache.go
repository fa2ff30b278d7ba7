package store

import (
	"github.com/sirupsen/logrus"

	"github.com/edgeandnode/block-oracle/entity"
)

// Cache is a write-back cache over the EntityStore scoped to a single
// invocation. It is the sole write path while an invocation runs: executors
// stage every mutation here and the driver either commits the batch or
// discards it. At most one pending write exists per (kind, id).
type Cache struct {
	store   *EntityStore
	entries map[cacheKey]*cacheEntry
	absent  map[cacheKey]bool // memoized store misses
	log     *logrus.Entry
}

type cacheKey struct {
	kind entity.Kind
	id   string
}

type cacheEntry struct {
	ent   entity.Entity
	dirty bool
}

// NewCache creates an empty cache over the given store.
func NewCache(store *EntityStore, log *logrus.Logger) *Cache {
	return &Cache{
		store:   store,
		entries: make(map[cacheKey]*cacheEntry),
		absent:  make(map[cacheKey]bool),
		log:     log.WithField("module", "store-cache"),
	}
}

// Load returns the cached entity, falling back to the store. The second
// return value is false when the id exists neither in the cache nor in the
// store.
func (c *Cache) Load(kind entity.Kind, id string) (entity.Entity, bool, error) {
	key := cacheKey{kind, id}
	if e, ok := c.entries[key]; ok {
		return e.ent, true, nil
	}
	if c.absent[key] {
		return nil, false, nil
	}
	ent, ok, err := c.store.Load(kind, id)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		c.absent[key] = true
		return nil, false, nil
	}
	c.entries[key] = &cacheEntry{ent: ent}
	return ent, true, nil
}

// GetOrCreate returns the cached or stored entity, constructing a fresh one
// via create when absent. Created entities are immediately marked dirty.
func (c *Cache) GetOrCreate(kind entity.Kind, id string, create func() entity.Entity) (entity.Entity, error) {
	ent, ok, err := c.Load(kind, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return ent, nil
	}
	ent = create()
	c.entries[cacheKey{kind, id}] = &cacheEntry{ent: ent, dirty: true}
	delete(c.absent, cacheKey{kind, id})
	return ent, nil
}

// Save stages an entity write. The entity becomes the cached value for its
// (kind, id) and is flushed on Commit.
func (c *Cache) Save(ent entity.Entity) {
	key := cacheKey{ent.EntityKind(), ent.EntityID()}
	c.entries[key] = &cacheEntry{ent: ent, dirty: true}
	delete(c.absent, key)
}

// Has reports whether the cache or the store contains the id. A store miss
// is queried once and memoized.
func (c *Cache) Has(kind entity.Kind, id string) (bool, error) {
	key := cacheKey{kind, id}
	if _, ok := c.entries[key]; ok {
		return true, nil
	}
	if c.absent[key] {
		return false, nil
	}
	ok, err := c.store.Has(kind, id)
	if err != nil {
		return false, err
	}
	if !ok {
		c.absent[key] = true
	}
	return ok, nil
}

// Commit writes all dirty entries to the EntityStore. Write order is
// unspecified. Committed entries are retained clean, so the cache stays
// usable for follow-up reads.
func (c *Cache) Commit() error {
	n := 0
	for _, e := range c.entries {
		if !e.dirty {
			continue
		}
		if err := c.store.Save(e.ent); err != nil {
			return err
		}
		e.dirty = false
		n++
	}
	c.log.WithField("entities", n).Debug("committed cache")
	return nil
}

// Discard drops every staged write and memoized lookup.
func (c *Cache) Discard() {
	c.entries = make(map[cacheKey]*cacheEntry)
	c.absent = make(map[cacheKey]bool)
}
