// Package store persists entities through a pluggable key-value substrate
// and provides the per-invocation write-back cache the message executors
// mutate state through.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edgeandnode/block-oracle/entity"
)

// KeyValueStore is the minimal key-value surface the EntityStore needs.
// lachesis-base kvdb stores satisfy it, as does the LevelDB wrapper in this
// package.
type KeyValueStore interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Close() error
}

// EntityStore loads and saves entities by (kind, id), serializing them as
// JSON. Keys are namespaced per kind.
type EntityStore struct {
	db  KeyValueStore
	log *logrus.Entry
}

// NewEntityStore wraps a key-value store.
func NewEntityStore(db KeyValueStore, log *logrus.Logger) *EntityStore {
	return &EntityStore{
		db:  db,
		log: log.WithField("module", "store"),
	}
}

func entityKey(kind entity.Kind, id string) []byte {
	return []byte(string(kind) + "/" + id)
}

// Has reports whether an entity of the given kind and id exists.
func (s *EntityStore) Has(kind entity.Kind, id string) (bool, error) {
	ok, err := s.db.Has(entityKey(kind, id))
	if err != nil {
		return false, fmt.Errorf("entity store has %s %q: %w", kind, id, err)
	}
	return ok, nil
}

// Load fetches an entity. The second return value is false when the id is
// not present.
func (s *EntityStore) Load(kind entity.Kind, id string) (entity.Entity, bool, error) {
	key := entityKey(kind, id)
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, false, fmt.Errorf("entity store load %s %q: %w", kind, id, err)
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := s.db.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("entity store load %s %q: %w", kind, id, err)
	}
	ent, err := entity.New(kind)
	if err != nil {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, ent); err != nil {
		return nil, false, fmt.Errorf("entity store decode %s %q: %w", kind, id, err)
	}
	return ent, true, nil
}

// Save writes an entity, overwriting any previous value.
func (s *EntityStore) Save(ent entity.Entity) error {
	raw, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("entity store encode %s %q: %w", ent.EntityKind(), ent.EntityID(), err)
	}
	if err := s.db.Put(entityKey(ent.EntityKind(), ent.EntityID()), raw); err != nil {
		return fmt.Errorf("entity store save %s %q: %w", ent.EntityKind(), ent.EntityID(), err)
	}
	s.log.WithFields(logrus.Fields{
		"kind": ent.EntityKind(),
		"id":   ent.EntityID(),
	}).Debug("saved entity")
	return nil
}

// Close releases the underlying key-value store.
func (s *EntityStore) Close() error {
	return s.db.Close()
}
