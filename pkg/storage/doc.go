/*
Package storage provides the embedded BoltDB persistence layer shared by the
container manager's metadata records, the daemon's node identity and the
security package's root CA record.

Unlike a typed ORM, Store is a plain bucket/key/value interface: each owning
package (pkg/container, pkg/daemon, pkg/security) calls EnsureBucket
before its first write and then marshals its own records to
JSON before Put, matching the on-disk layout spec.md §6 describes under
data_root: containers/<id>/metadata.json, images/<digest>/manifest, and so
on, here collapsed into BoltDB buckets named the same way rather than one
file per record.
*/
package storage
