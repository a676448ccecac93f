package vlog

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// PointerSize is the fixed wire size of a ValuePointer.
const PointerSize = 12

// ValuePointer locates a Value record in the value log: which segment it is
// in, where it starts, and how long the encoded record is.
//
// The on-disk layout is fid ‖ len ‖ offset, all big-endian — note that len
// precedes offset. This ordering is idiosyncratic but is a cross-module wire
// contract: pointers are embedded as opaque values inside SSTables by the
// LSM layer, so any reimplementation must preserve it exactly.
type ValuePointer struct {
	Fid    uint32
	Offset uint32
	Len    uint32
}

// Encode writes the pointer as 12 bytes (fid, len, offset, big-endian) and,
// if w has a Flush() error method (as *bufio.Writer does), flushes it.
func (p ValuePointer) Encode(w io.Writer) error {
	var buf [PointerSize]byte
	binary.BigEndian.PutUint32(buf[0:4], p.Fid)
	binary.BigEndian.PutUint32(buf[4:8], p.Len)
	binary.BigEndian.PutUint32(buf[8:12], p.Offset)
	if _, err := w.Write(buf[:]); err != nil {
		return errors.Wrap(err, "vlog: encode value pointer")
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, "vlog: flush value pointer")
		}
	}
	return nil
}

// DecodePointer reverses Encode, reading exactly 12 bytes from r.
func DecodePointer(r io.Reader) (ValuePointer, error) {
	var buf [PointerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return ValuePointer{}, errors.Wrap(err, "vlog: decode value pointer")
	}
	return ValuePointer{
		Fid:    binary.BigEndian.Uint32(buf[0:4]),
		Len:    binary.BigEndian.Uint32(buf[4:8]),
		Offset: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}
