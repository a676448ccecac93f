package sstable

import (
	"bytes"
	"fmt"

	"github.com/wisckeydb/storage/kverrors"
)

// Block is a contiguous byte slice of an SSTable holding a sequence of
// records compressed against a shared prefix (the block's base key). Data
// borrows from the Table's backing mapping and must not outlive it.
type Block struct {
	offset uint32
	data   []byte
}

func (b Block) Len() int { return len(b.data) }

// cachedRecord is what BlockIterator.Next latches so that Prev can walk
// header.prev back to the previous record without re-deriving base_key.
type cachedRecord struct {
	header       header
	headerOffset uint32
	key          []byte
	value        []byte
}

// BlockIterator walks the records of a Block forward or (after at least one
// Next) backward. Errors are latched: once set, every subsequent Next
// returns false and Err reports the captured error.
type BlockIterator struct {
	block   Block
	pos     uint32
	baseKey []byte
	cur     *cachedRecord
	err     error
}

func NewBlockIterator(b Block) *BlockIterator {
	return &BlockIterator{block: b}
}

// Reset returns the iterator to its just-constructed state.
func (it *BlockIterator) Reset() {
	it.pos = 0
	it.baseKey = nil
	it.cur = nil
	it.err = nil
}

// Err returns the latched error, if any.
func (it *BlockIterator) Err() error { return it.err }

// Key returns the most recently yielded key.
func (it *BlockIterator) Key() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.key
}

// Value returns the most recently yielded value.
func (it *BlockIterator) Value() []byte {
	if it.cur == nil {
		return nil
	}
	return it.cur.value
}

// Next decodes and yields the next record, or returns false at end-of-block,
// on the padding sentinel, or once an error has been latched.
func (it *BlockIterator) Next() bool {
	if it.err != nil {
		return false
	}

	if it.pos == uint32(it.block.Len()) {
		return false
	}
	if it.pos > uint32(it.block.Len()) {
		it.err = fmt.Errorf("sstable: iterator position %d past block end %d", it.pos, it.block.Len())
		return false
	}

	headerOffset := it.pos
	h, err := decodeHeader(it.block.data[it.pos:])
	if err != nil {
		it.err = fmt.Errorf("%w: %w", kverrors.ErrCorruptTable, err)
		return false
	}
	if h.isPadding() {
		return false
	}
	it.pos += headerSize

	if it.baseKey == nil {
		if h.plen != 0 {
			it.err = fmt.Errorf("%w: first record of block has nonzero plen %d", kverrors.ErrCorruptTable, h.plen)
			return false
		}
		keyEnd := it.pos + uint32(h.klen)
		if keyEnd > uint32(it.block.Len()) {
			it.err = fmt.Errorf("%w: %w: pos=%d klen=%d block_len=%d", kverrors.ErrCorruptTable, kverrors.ErrKeyExceedsBlock, it.pos, h.klen, it.block.Len())
			return false
		}
		it.baseKey = append([]byte(nil), it.block.data[it.pos:keyEnd]...)
	}

	key, err := it.parseKey(h)
	if err != nil {
		it.err = err
		return false
	}
	value, err := it.parseValue(h)
	if err != nil {
		it.err = err
		return false
	}

	it.cur = &cachedRecord{header: h, headerOffset: headerOffset, key: key, value: value}
	return true
}

func (it *BlockIterator) parseKey(h header) ([]byte, error) {
	if uint32(h.plen) > uint32(len(it.baseKey)) {
		return nil, fmt.Errorf("%w: %w: prefix length %d exceeds base key length %d", kverrors.ErrCorruptTable, kverrors.ErrKeyExceedsBlock, h.plen, len(it.baseKey))
	}
	end := it.pos + uint32(h.klen)
	if end > uint32(it.block.Len()) {
		return nil, fmt.Errorf("%w: %w: pos=%d klen=%d block_len=%d", kverrors.ErrCorruptTable, kverrors.ErrKeyExceedsBlock, it.pos, h.klen, it.block.Len())
	}
	key := make([]byte, 0, int(h.plen)+int(h.klen))
	key = append(key, it.baseKey[:h.plen]...)
	key = append(key, it.block.data[it.pos:end]...)
	it.pos = end
	return key, nil
}

func (it *BlockIterator) parseValue(h header) ([]byte, error) {
	end := it.pos + uint32(h.vlen)
	if end > uint32(it.block.Len()) {
		return nil, fmt.Errorf("%w: %w: pos=%d vlen=%d block_len=%d", kverrors.ErrCorruptTable, kverrors.ErrValueExceedsBlock, it.pos, h.vlen, it.block.Len())
	}
	value := append([]byte(nil), it.block.data[it.pos:end]...)
	it.pos = end
	return value, nil
}

// Prev walks backward to the record preceding the last one yielded by Next,
// using the cached record's header.prev. It returns false (with no error
// latched) if there is nothing cached to walk back from, i.e. Next has
// never been called.
func (it *BlockIterator) Prev() bool {
	if it.err != nil {
		return false
	}
	if it.cur == nil {
		return false
	}
	if it.cur.headerOffset == 0 {
		// The cached record is the block's first; there is nothing before it.
		return false
	}

	prevOffset := it.cur.header.prev
	h, err := decodeHeader(it.block.data[prevOffset:])
	if err != nil {
		it.err = fmt.Errorf("%w: %w", kverrors.ErrCorruptTable, err)
		return false
	}

	savedPos := it.pos
	it.pos = prevOffset + headerSize
	key, err := it.parseKey(h)
	if err != nil {
		it.pos = savedPos
		it.err = err
		return false
	}
	value, err := it.parseValue(h)
	if err != nil {
		it.pos = savedPos
		it.err = err
		return false
	}
	it.pos = savedPos

	it.cur = &cachedRecord{header: h, headerOffset: prevOffset, key: key, value: value}
	return true
}

// SeekFrom selects where BlockIterator.Seek begins scanning.
type SeekFrom int

const (
	SeekStart SeekFrom = iota
	SeekCurrent
)

// Seek advances (resetting first if from == SeekStart) until the yielded key
// is lexicographically >= prefix, or the block is exhausted. A previously
// latched error is only cleared when from == SeekStart (via Reset); with
// SeekCurrent the iterator stays permanently exhausted, matching Next.
func (it *BlockIterator) Seek(prefix []byte, from SeekFrom) bool {
	if from == SeekStart {
		it.Reset()
	}
	for it.Next() {
		if bytes.Compare(it.Key(), prefix) >= 0 {
			return true
		}
	}
	return false
}
