package store

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is a persistent KeyValueStore backed by goleveldb, used by the
// run command when a data directory is configured.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB creates or opens a LevelDB database at the given path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.db.Has(key, nil)
}

// Get returns (nil, nil) for a missing key; the EntityStore always checks
// Has first.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (l *LevelDB) Put(key []byte, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
