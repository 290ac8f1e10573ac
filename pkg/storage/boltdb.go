package storage

import (
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store on top of BoltDB, matching the single-file,
// single-process embedded database the daemon keeps under its data root
// (spec.md §6 "Persisted daemon state").
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) warren.db-equivalent state
// file "corectl.db" under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "corectl.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// EnsureBucket creates the named bucket if it does not already exist.
// Callers invoke this once during their own construction so subsequent
// Put/Get/ForEach calls never race bucket creation.
func (s *BoltStore) EnsureBucket(bucket string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
}

// Put upserts value at key within bucket.
func (s *BoltStore) Put(bucket, key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			var err error
			if b, err = tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return err
			}
		}
		return b.Put([]byte(key), value)
	})
}

// Get returns the value stored at key within bucket, or ErrNotFound.
func (s *BoltStore) Get(bucket, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// Delete removes key from bucket; deleting an absent key is a no-op.
func (s *BoltStore) Delete(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// ForEach visits every key/value pair in bucket in key order (bbolt's
// native iteration order), stopping early if fn returns an error.
func (s *BoltStore) ForEach(bucket string, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return nil
		}
		return b.ForEach(fn)
	})
}
