package sstable

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/wisckeydb/storage/kverrors"
)

// LoadMode selects how Table.Open maps the underlying file into memory.
type LoadMode int

const (
	// MemoryMap maps the file directly; pages are faulted in on access.
	MemoryMap LoadMode = iota
	// LoadToRAM copies the whole file into an anonymous mapping up front.
	// The Table only reads that mapping; it is not write-protected.
	LoadToRAM
)

// keyOffset is one entry of a Table's in-memory block index.
type keyOffset struct {
	prefix []byte
	offset uint32
	length uint32
}

// Table is an immutable SSTable file, opened either memory-mapped or
// slurped into RAM. Blocks and record slices yielded from it borrow from
// the mapping and must not outlive the Table.
type Table struct {
	id           uint32
	file         *os.File
	tableSize    uint32
	data         mmap.MMap
	index        []keyOffset
	bloomPayload []byte
	bloom        *bloom.BloomFilter
}

// Open parses file's trailer and block index per mode, keeping file open
// for the lifetime of the returned Table (Close releases both the mapping
// and the handle).
func Open(id uint32, file *os.File, mode LoadMode) (*Table, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: stat table %d", id)
	}
	size := info.Size()
	if size < 0 || size > 1<<32-1 {
		return nil, errors.Errorf("sstable: table %d size %d out of range", id, size)
	}

	// MemoryMap shares pages directly against the file; LoadToRAM copies the
	// file into an anonymous mapping so the Table is insulated from any
	// later writer touching the underlying file.
	var data mmap.MMap
	if mode == LoadToRAM {
		data, err = mmap.MapRegion(nil, int(size), mmap.RDWR, mmap.ANON, 0)
		if err == nil {
			if _, rerr := file.ReadAt(data, 0); rerr != nil {
				_ = data.Unmap()
				return nil, errors.Wrapf(rerr, "sstable: load table %d into memory", id)
			}
		}
	} else {
		data, err = mmap.Map(file, mmap.RDONLY, 0)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sstable: mmap table %d", id)
	}

	index, bloomPayload, err := readIndex(data)
	if err != nil {
		_ = data.Unmap()
		return nil, err
	}

	return &Table{
		id:           id,
		file:         file,
		tableSize:    uint32(size),
		data:         data,
		index:        index,
		bloomPayload: bloomPayload,
	}, nil
}

// readIndex parses the trailer backward from EOF per the documented order:
// bloom_len, bloom payload (opaque here), restart_count, restart[] array.
func readIndex(data []byte) ([]keyOffset, []byte, error) {
	readPos := len(data)

	readPos -= 4
	if readPos < 0 {
		return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "table shorter than bloom_len field")
	}
	bloomLen := binary.BigEndian.Uint32(data[readPos : readPos+4])

	readPos -= int(bloomLen)
	if readPos < 0 {
		return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "bloom payload of length %d overruns table", bloomLen)
	}
	bloomPayload := data[readPos : readPos+int(bloomLen)]

	readPos -= 4
	if readPos < 0 {
		return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "table shorter than restart_count field")
	}
	restartCount := binary.BigEndian.Uint32(data[readPos : readPos+4])

	readPos -= 4 * int(restartCount)
	if readPos < 0 {
		return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "restart array of length %d overruns table", restartCount)
	}
	restartBuf := data[readPos : readPos+4*int(restartCount)]
	trailerStart := uint32(readPos)

	restarts := make([]uint32, restartCount)
	for i := range restarts {
		restarts[i] = binary.BigEndian.Uint32(restartBuf[4*i : 4*i+4])
	}

	index := make([]keyOffset, 0, restartCount)
	for i, off := range restarts {
		var length uint32
		if i+1 < len(restarts) {
			if restarts[i+1] < off {
				return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "restart[%d]=%d < restart[%d]=%d", i+1, restarts[i+1], i, off)
			}
			length = restarts[i+1] - off
		} else {
			if trailerStart < off {
				return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "trailer start %d precedes final restart %d", trailerStart, off)
			}
			length = trailerStart - off
		}
		if uint64(off)+uint64(length) > uint64(len(data)) {
			return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "block %d [%d,%d) overruns table of size %d", i, off, off+length, len(data))
		}

		h, err := decodeHeader(data[off : off+length])
		if err != nil {
			return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "block %d: %v", i, err)
		}
		if h.plen != 0 {
			return nil, nil, errors.Wrapf(kverrors.ErrCorruptTable, "block %d first record has nonzero plen %d", i, h.plen)
		}
		prefixEnd := off + headerSize + uint32(h.klen)
		if prefixEnd > off+length {
			return nil, nil, errors.Wrapf(fmt.Errorf("%w: %w", kverrors.ErrCorruptTable, kverrors.ErrKeyExceedsBlock), "block %d prefix key overruns block", i)
		}
		prefix := append([]byte(nil), data[off+headerSize:prefixEnd]...)

		index = append(index, keyOffset{prefix: prefix, offset: off, length: length})
	}

	return index, bloomPayload, nil
}

// ID returns the table's file id.
func (t *Table) ID() uint32 { return t.id }

// Size returns the table's total on-disk size in bytes.
func (t *Table) Size() uint32 { return t.tableSize }

// NumBlocks returns the number of data blocks in the table.
func (t *Table) NumBlocks() int { return len(t.index) }

// Block returns the i'th data block. The returned Block borrows from the
// Table's mapping and must not outlive it.
func (t *Table) Block(i int) (Block, error) {
	if i < 0 || i >= len(t.index) {
		return Block{}, errors.Errorf("sstable: block index %d out of range [0,%d)", i, len(t.index))
	}
	ko := t.index[i]
	return Block{offset: ko.offset, data: t.data[ko.offset : ko.offset+ko.length]}, nil
}

// Close unmaps the table and closes its file handle.
func (t *Table) Close() error {
	if err := t.data.Unmap(); err != nil {
		return errors.Wrapf(err, "sstable: unmap table %d", t.id)
	}
	return t.file.Close()
}

// Iter returns a TableIterator positioned before the first record.
func (t *Table) Iter() *TableIterator {
	return &TableIterator{t: t}
}

// TableIterator walks every block of a Table in order, lazily constructing
// a BlockIterator for each. Errors are latched across block boundaries.
type TableIterator struct {
	t         *Table
	blockPos  int
	blockIter *BlockIterator
	err       error
}

// Err returns the latched error, checking both the table-level error and
// any error latched in the current block iterator.
func (ti *TableIterator) Err() error {
	if ti.err != nil {
		return ti.err
	}
	if ti.blockIter != nil {
		return ti.blockIter.Err()
	}
	return nil
}

// Reset returns the iterator to the beginning of the table.
func (ti *TableIterator) Reset() {
	ti.blockPos = 0
	ti.blockIter = nil
	ti.err = nil
}

// Next advances to the next record across block boundaries, returning false
// at end-of-table or once an error is latched.
func (ti *TableIterator) Next() bool {
	if ti.Err() != nil {
		return false
	}
	if ti.blockPos >= ti.t.NumBlocks() {
		return false
	}
	if ti.blockIter == nil {
		b, err := ti.t.Block(ti.blockPos)
		if err != nil {
			ti.err = err
			return false
		}
		ti.blockIter = NewBlockIterator(b)
	}
	if ti.blockIter.Next() {
		return true
	}
	if err := ti.blockIter.Err(); err != nil {
		return false
	}
	ti.blockPos++
	ti.blockIter = nil
	return ti.Next()
}

// Key returns the most recently yielded key.
func (ti *TableIterator) Key() []byte {
	if ti.blockIter == nil {
		return nil
	}
	return ti.blockIter.Key()
}

// Value returns the most recently yielded value.
func (ti *TableIterator) Value() []byte {
	if ti.blockIter == nil {
		return nil
	}
	return ti.blockIter.Value()
}
