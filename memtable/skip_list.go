package memtable

import (
	"bytes"
	"iter"
	"math/rand"

	"github.com/wisckeydb/storage/vlog"
)

const maxLevel = 32

type skipListNode struct {
	record  Record
	forward []*skipListNode
}

func newSkipListNode(key []byte, ptr vlog.ValuePointer, tombstone bool, levels int) *skipListNode {
	forward := make([]*skipListNode, levels+1)
	return &skipListNode{
		record:  Record{Key: key, Pointer: ptr, Tombstone: tombstone},
		forward: forward,
	}
}

// SkipList is a []byte-keyed, in-memory ordered map from key to
// vlog.ValuePointer, with tombstone markers for deletes. Keys compare via
// bytes.Compare, matching the byte-string key domain an LSM operates over.
type SkipList struct {
	head   *skipListNode
	levels int
	size   int
}

func NewSkipListMemtable() *SkipList {
	return &SkipList{
		head:   newSkipListNode(nil, vlog.ValuePointer{}, false, 0),
		levels: -1,
		size:   0,
	}
}

// Len returns the number of distinct keys present, including tombstoned ones.
func (sl *SkipList) Len() int { return sl.size }

// Get returns the key's current pointer. A tombstoned key reports not-found,
// since a Delete shadows any earlier Put within the same memtable.
func (sl *SkipList) Get(key []byte) (vlog.ValuePointer, bool) {
	curr := sl.head

	for level := sl.levels; level >= 0; level-- {
		for {
			if curr.forward[level] == nil || bytes.Compare(curr.forward[level].record.Key, key) > 0 {
				break
			} else if bytes.Equal(curr.forward[level].record.Key, key) {
				rec := curr.forward[level].record
				if rec.Tombstone {
					return vlog.ValuePointer{}, false
				}
				return rec.Pointer, true
			}
			curr = curr.forward[level]
		}
	}

	return vlog.ValuePointer{}, false
}

func getRandomLevel() int {
	level := 0

	for rand.Int31()&1 == 0 && level < maxLevel {
		level++
	}

	return level
}

func (sl *SkipList) adjustLevels(level int) {
	temp := sl.head.forward

	sl.head = newSkipListNode(nil, vlog.ValuePointer{}, false, level)
	sl.levels = level

	copy(sl.head.forward, temp)
}

func (sl *SkipList) findUpdates(key []byte) []*skipListNode {
	updates := make([]*skipListNode, sl.levels+1)
	x := sl.head

	for level := sl.levels; level >= 0; level-- {
		for x.forward[level] != nil && bytes.Compare(x.forward[level].record.Key, key) < 0 {
			x = x.forward[level]
		}
		updates[level] = x
	}
	return updates
}

// Put associates key with ptr, clearing any earlier tombstone.
func (sl *SkipList) Put(key []byte, ptr vlog.ValuePointer) {
	sl.upsert(key, ptr, false)
}

// Delete marks key as tombstoned without removing it from the structure, so
// that a later flush can propagate the delete downstream.
func (sl *SkipList) Delete(key []byte) {
	sl.upsert(key, vlog.ValuePointer{}, true)
}

func (sl *SkipList) upsert(key []byte, ptr vlog.ValuePointer, tombstone bool) {
	newLevel := getRandomLevel()

	if newLevel > sl.levels {
		sl.adjustLevels(newLevel)
	}

	updates := sl.findUpdates(key)
	x := updates[0]

	if x.forward[0] != nil && bytes.Equal(x.forward[0].record.Key, key) {
		x.forward[0].record.Pointer = ptr
		x.forward[0].record.Tombstone = tombstone
		return
	}

	keyCopy := append([]byte(nil), key...)
	newNode := newSkipListNode(keyCopy, ptr, tombstone, newLevel)

	for level := 0; level <= newLevel; level++ {
		newNode.forward[level] = updates[level].forward[level]
		updates[level].forward[level] = newNode
	}

	sl.size++
}

// All yields every record (including tombstones) in ascending key order,
// ready for an sstable.Builder to consume directly.
func (sl *SkipList) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		curr := sl.head
		for curr.forward[0] != nil {
			if !yield(curr.forward[0].record) {
				break
			}
			curr = curr.forward[0]
		}
	}
}
