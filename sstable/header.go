package sstable

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// headerSize is the fixed, canonical on-disk size of a record header inside
// a data block: plen, klen, vlen as big-endian u16, prev as big-endian u32,
// plus 6 reserved bytes (always zero) to make up the 16.
const headerSize = 16

// header is the 16-byte preamble preceding every diff-key-compressed record
// inside a data block.
type header struct {
	plen uint16 // overlap with the block's base key
	klen uint16 // length of the diff key
	vlen uint16 // length of the value
	prev uint32 // block-relative offset of the previous record's header
}

func decodeHeader(b []byte) (header, error) {
	if len(b) < headerSize {
		return header{}, errors.Errorf("sstable: short header: got %d bytes, want %d", len(b), headerSize)
	}
	return header{
		plen: binary.BigEndian.Uint16(b[0:2]),
		klen: binary.BigEndian.Uint16(b[2:4]),
		vlen: binary.BigEndian.Uint16(b[4:6]),
		prev: binary.BigEndian.Uint32(b[6:10]),
	}, nil
}

func (h header) encode(w io.Writer) error {
	var b [headerSize]byte
	binary.BigEndian.PutUint16(b[0:2], h.plen)
	binary.BigEndian.PutUint16(b[2:4], h.klen)
	binary.BigEndian.PutUint16(b[4:6], h.vlen)
	binary.BigEndian.PutUint32(b[6:10], h.prev)
	_, err := w.Write(b[:])
	return errors.Wrap(err, "sstable: write header")
}

// isPadding reports whether h is the end-of-block sentinel: a record with
// plen=0 and klen=0 marks end-of-block during iteration even if block bytes
// remain as padding.
func (h header) isPadding() bool {
	return h.plen == 0 && h.klen == 0
}
