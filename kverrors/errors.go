// Package kverrors defines the error taxonomy shared by the value log and
// the SSTable reader/builder. Errors are plain sentinels so callers can test
// with errors.Is; call sites add path/offset context with pkg/errors.Wrapf.
package kverrors

import "errors"

var (
	// ErrInvalidFilename is returned when a value-log directory contains a
	// file with the log suffix whose stem is not a valid base-10 fid.
	ErrInvalidFilename = errors.New("kverrors: invalid value log filename")

	// ErrUnexpectedEOF is returned when a value-log read runs past the valid
	// region of a segment: at or past the active segment's write offset,
	// past a segment's end on disk, or into a segment that is not open.
	ErrUnexpectedEOF = errors.New("kverrors: unexpected end of file")

	// ErrCorruptRecord is returned when a value-log record's trailing CRC-32C
	// does not match the header+key+value bytes that were read.
	ErrCorruptRecord = errors.New("kverrors: corrupt value log record")

	// ErrCorruptTable is returned when an SSTable's trailer cannot be parsed,
	// its restart offsets are inconsistent, a block's first record does not
	// have plen == 0, or a block's record boundaries are invalid.
	ErrCorruptTable = errors.New("kverrors: corrupt sstable")

	// ErrKeyExceedsBlock and ErrValueExceedsBlock are raised while decoding a
	// record inside a block when the diff-key or value would run past the
	// end of the block's data. Both are considered CorruptTable (test with
	// errors.Is against ErrCorruptTable too).
	ErrKeyExceedsBlock   = errors.New("kverrors: key exceeds size of block")
	ErrValueExceedsBlock = errors.New("kverrors: value exceeds size of block")

	// ErrOutOfOrder is returned by the table builder when Add is called with
	// a key that does not strictly follow the previously added key.
	ErrOutOfOrder = errors.New("kverrors: keys added to builder out of order")
)
