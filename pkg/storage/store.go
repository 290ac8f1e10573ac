// Package storage provides the persistent key/value layer shared by the job
// controller's history ring, the container manager's metadata/image/volume
// records, and the distributed dispatcher's node table. It deliberately
// knows nothing about those domain types: callers marshal their own records
// and address them by bucket + key, the way the teacher's BoltDB store
// addressed cluster entities by id within a fixed bucket.
package storage

import "errors"

// ErrNotFound is returned by Get when the key does not exist in the bucket.
var ErrNotFound = errors.New("storage: key not found")

// Store is the persistence interface implemented by BoltStore. Components
// open their own buckets via EnsureBucket and own the encoding of the
// values they store (JSON, matching the teacher's convention).
type Store interface {
	EnsureBucket(bucket string) error
	Put(bucket, key string, value []byte) error
	Get(bucket, key string) ([]byte, error)
	Delete(bucket, key string) error
	ForEach(bucket string, fn func(key, value []byte) error) error
	Close() error
}
