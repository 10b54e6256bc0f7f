package enode

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// DB is an optional on-disk cache of observed node records, backed by a
// single LevelDB bucket keyed by nodeID and storing a serialized Record
// per entry.
type DB struct {
	ldb *leveldb.DB
}

// OpenDB opens (creating if necessary) a LevelDB node cache at path. An
// empty path opens an in-memory database, used by tests; cmd/xdagnode
// opens no database at all when --datadir is empty.
func OpenDB(path string) (*DB, error) {
	var (
		ldb *leveldb.DB
		err error
	)
	if path == "" {
		ldb, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		ldb, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("enode: open node database: %w", err)
	}
	return &DB{ldb: ldb}, nil
}

// Close releases the underlying LevelDB handle.
func (db *DB) Close() error {
	return db.ldb.Close()
}

var keyPrefix = []byte("n:")

func nodeKey(id ID) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(id))
	k = append(k, keyPrefix...)
	k = append(k, id[:]...)
	return k
}

// UpdateNode persists (or overwrites) the record for r.ID.
func (db *DB) UpdateNode(r *Record) error {
	return db.ldb.Put(nodeKey(r.ID), r.Serialize(), nil)
}

// Node returns the persisted record for id, or nil if absent.
func (db *DB) Node(id ID) *Record {
	b, err := db.ldb.Get(nodeKey(id), nil)
	if err != nil {
		return nil
	}
	r, err := DeserializeRecord(b)
	if err != nil {
		return nil
	}
	return r
}

// DeleteNode removes the persisted record for id.
func (db *DB) DeleteNode(id ID) error {
	return db.ldb.Delete(nodeKey(id), nil)
}

// QuerySeeds returns up to n persisted records, used to seed the routing
// table and dial pool on startup before fresh discovery/DNS results
// arrive.
func (db *DB) QuerySeeds(n int) []*Record {
	iter := db.ldb.NewIterator(nil, nil)
	defer iter.Release()

	var out []*Record
	for iter.Next() && len(out) < n {
		key := iter.Key()
		if len(key) <= len(keyPrefix) {
			continue
		}
		r, err := DeserializeRecord(iter.Value())
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}
