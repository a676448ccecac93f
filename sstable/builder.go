package sstable

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/pkg/errors"

	"github.com/wisckeydb/storage/internal/bytesutil"
	"github.com/wisckeydb/storage/kverrors"
)

// defaultBlockSize targets 4KiB uncompressed data blocks.
const defaultBlockSize = 4 * 1024

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBlockSize overrides the default 4KiB block-size threshold.
func WithBlockSize(n int) BuilderOption {
	return func(b *Builder) { b.blockSize = n }
}

type pendingRecord struct {
	key   []byte
	value []byte
}

// Builder constructs an SSTable file byte-for-byte matching the format
// Table.Open consumes: a sequence of prefix-compressed data blocks, followed
// by a trailer holding the restart array and then the bloom filter payload.
type Builder struct {
	w         io.Writer
	blockSize int

	written   int64
	restarts  []uint32
	bloom     *bloom.BloomFilter
	lastKey   []byte
	hasLast   bool

	curBaseKey []byte
	curSize    int
	curPrevOff uint32
	curHasPrev bool
	pending    []pendingRecord
}

// NewBuilder returns a Builder that writes an SSTable to w.
func NewBuilder(w io.Writer, opts ...BuilderOption) *Builder {
	b := &Builder{
		w:         w,
		blockSize: defaultBlockSize,
		bloom:     bloom.NewWithEstimates(bloomEstimatedKeys, 0.01),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// recordSize returns the on-disk size a (key, value) pair would occupy
// given the current block's base key, without mutating builder state.
func (b *Builder) recordSize(key, value []byte) int {
	plen := 0
	if b.curBaseKey != nil {
		plen = len(bytesutil.LongestCommonPrefix(b.curBaseKey, key))
	}
	diffLen := len(key) - plen
	return headerSize + diffLen + len(value)
}

// Add appends a (key, value) pair. key must be strictly greater than the
// previously added key; callers are expected to present sorted,
// already-deduplicated input, matching how an LSM flush presents data.
func (b *Builder) Add(key, value []byte) error {
	if b.hasLast && bytes.Compare(key, b.lastKey) <= 0 {
		return errors.Wrapf(kverrors.ErrOutOfOrder, "key %q does not exceed previous key %q", key, b.lastKey)
	}

	if len(b.pending) > 0 && b.curSize+b.recordSize(key, value) > b.blockSize {
		if err := b.flushBlock(); err != nil {
			return err
		}
	}

	if b.curBaseKey == nil {
		b.curBaseKey = append([]byte(nil), key...)
	}
	b.curSize += b.recordSize(key, value)
	b.pending = append(b.pending, pendingRecord{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})

	b.bloom.Add(key)
	b.lastKey = append([]byte(nil), key...)
	b.hasLast = true

	return nil
}

// flushBlock writes the current pending records as one data block, records
// its restart offset, and resets builder state for the next block.
func (b *Builder) flushBlock() error {
	if len(b.pending) == 0 {
		return nil
	}

	b.restarts = append(b.restarts, uint32(b.written))

	baseKey := b.pending[0].key
	b.curHasPrev = false
	b.curPrevOff = 0

	for i, rec := range b.pending {
		headerOffset := uint32(b.written - b.restarts[len(b.restarts)-1])
		plen := 0
		if i > 0 {
			plen = len(bytesutil.LongestCommonPrefix(baseKey, rec.key))
		}
		diff := rec.key[plen:]

		h := header{
			plen: uint16(plen),
			klen: uint16(len(diff)),
			vlen: uint16(len(rec.value)),
		}
		if b.curHasPrev {
			h.prev = b.curPrevOff
		}

		if err := h.encode(b.w); err != nil {
			return err
		}
		if _, err := b.w.Write(diff); err != nil {
			return errors.Wrap(err, "sstable: write diff key")
		}
		if _, err := b.w.Write(rec.value); err != nil {
			return errors.Wrap(err, "sstable: write value")
		}

		b.curPrevOff = headerOffset
		b.curHasPrev = true
		b.written += int64(headerSize + len(diff) + len(rec.value))
	}

	b.pending = b.pending[:0]
	b.curBaseKey = nil
	b.curSize = 0
	return nil
}

// Finish flushes any partial block, then writes the trailer in exactly the
// order Table.Open's backward walk expects: restart[] array, restart_count,
// bloom payload, bloom_len. It returns the total size of the written table.
func (b *Builder) Finish() (int64, error) {
	if err := b.flushBlock(); err != nil {
		return 0, err
	}

	for _, off := range b.restarts {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], off)
		if _, err := b.w.Write(buf[:]); err != nil {
			return 0, errors.Wrap(err, "sstable: write restart entry")
		}
		b.written += 4
	}

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(b.restarts)))
	if _, err := b.w.Write(countBuf[:]); err != nil {
		return 0, errors.Wrap(err, "sstable: write restart_count")
	}
	b.written += 4

	var bloomBuf bytes.Buffer
	if _, err := b.bloom.WriteTo(&bloomBuf); err != nil {
		return 0, errors.Wrap(err, "sstable: serialize bloom filter")
	}
	if _, err := b.w.Write(bloomBuf.Bytes()); err != nil {
		return 0, errors.Wrap(err, "sstable: write bloom payload")
	}
	b.written += int64(bloomBuf.Len())

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(bloomBuf.Len()))
	if _, err := b.w.Write(lenBuf[:]); err != nil {
		return 0, errors.Wrap(err, "sstable: write bloom_len")
	}
	b.written += 4

	return b.written, nil
}
