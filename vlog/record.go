// Package vlog implements the value log: an append-only, segmented store of
// length-prefixed, CRC-protected key/value records. See ValueLog for the
// directory-level object and LogFile for one on-disk segment.
package vlog

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"

	"github.com/wisckeydb/storage/kverrors"
)

// castagnoli is the CRC-32C table used for every value log record: stronger
// burst-error detection than CRC-32 IEEE, the integrity guard against torn
// or bit-flipped writes.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// headerSize is the on-disk size of a Value record's klen/vlen header.
const headerSize = 8

// Value is a logical key/value entry stored in the value log.
type Value struct {
	Key   []byte
	Value []byte
}

// Encode writes v to w as
// klen:u32_be ‖ vlen:u32_be ‖ key ‖ value ‖ crc:u32_be and returns the total
// number of bytes written. The CRC-32C is computed over the header, key, and
// value bytes in that order, in a single pass.
func (v Value) Encode(w io.Writer) (int, error) {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(v.Key)))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(v.Value)))

	digest := crc32.New(castagnoli)
	mw := io.MultiWriter(w, digest)

	if _, err := mw.Write(header[:]); err != nil {
		return 0, errors.Wrap(err, "vlog: write record header")
	}
	if _, err := mw.Write(v.Key); err != nil {
		return 0, errors.Wrap(err, "vlog: write record key")
	}
	if _, err := mw.Write(v.Value); err != nil {
		return 0, errors.Wrap(err, "vlog: write record value")
	}

	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], digest.Sum32())
	if _, err := w.Write(crcBuf[:]); err != nil {
		return 0, errors.Wrap(err, "vlog: write record crc")
	}

	return headerSize + len(v.Key) + len(v.Value) + 4, nil
}

// Decode reads one Value record from r, verifying its trailing CRC-32C.
// A CRC mismatch returns kverrors.ErrCorruptRecord. Decode never assumes the
// reader supports seeking.
func Decode(r io.Reader) (Value, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Value{}, errors.Wrap(err, "vlog: read record header")
	}
	klen := binary.BigEndian.Uint32(header[0:4])
	vlen := binary.BigEndian.Uint32(header[4:8])

	digest := crc32.New(castagnoli)
	digest.Write(header[:])

	key := make([]byte, klen)
	if _, err := io.ReadFull(r, key); err != nil {
		return Value{}, errors.Wrap(err, "vlog: read record key")
	}
	digest.Write(key)

	value := make([]byte, vlen)
	if _, err := io.ReadFull(r, value); err != nil {
		return Value{}, errors.Wrap(err, "vlog: read record value")
	}
	digest.Write(value)

	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Value{}, errors.Wrap(err, "vlog: read record crc")
	}
	storedCRC := binary.BigEndian.Uint32(crcBuf[:])

	if storedCRC != digest.Sum32() {
		return Value{}, kverrors.ErrCorruptRecord
	}

	return Value{Key: key, Value: value}, nil
}

// encodedLen returns the on-disk size of v without encoding it.
func encodedLen(v Value) uint32 {
	return headerSize + uint32(len(v.Key)) + uint32(len(v.Value)) + 4
}
