// Package memtable provides an in-memory, ordered key-value store backed by
// a skip list, used to buffer writes ahead of an SSTable flush.
package memtable

import (
	"iter"

	"github.com/wisckeydb/storage/vlog"
)

// Record is one entry produced by Memtable.All, ready for an sstable.Builder
// to consume in order. Tombstone marks a delete; the LSM flush layer is
// responsible for deciding how (or whether) to represent that in the
// SSTable format, since the table format itself has no delete marker.
type Record struct {
	Key       []byte
	Pointer   vlog.ValuePointer
	Tombstone bool
}

// Memtable is the collaborator-facing surface a load harness or LSM layer
// drives directly; not safe for concurrent use.
type Memtable interface {
	Put(key []byte, ptr vlog.ValuePointer)
	Get(key []byte) (vlog.ValuePointer, bool)
	Delete(key []byte)
	Len() int
	All() iter.Seq[Record]
}
