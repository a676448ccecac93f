package vlog

import (
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/wisckeydb/storage/kverrors"
)

// LogFile owns one on-disk value log segment. A writable LogFile tracks a
// monotonically non-decreasing write offset, initialized to the file's
// end-of-file at open; a readonly LogFile never tracks one.
type LogFile struct {
	fid         uint32
	path        string
	file        *os.File
	readonly    bool
	writeOffset uint32
}

// openLogFile wraps an already-open *os.File as a LogFile. If readonly is
// false, the file is seeked to its current end and that position becomes the
// initial write offset. Writable segments are bounded to 4GiB (offsets are
// u32); construction fails if the file's current size already exceeds that.
func openLogFile(fid uint32, path string, file *os.File, readonly bool) (*LogFile, error) {
	lf := &LogFile{
		fid:      fid,
		path:     path,
		file:     file,
		readonly: readonly,
	}
	if !readonly {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "vlog: seek to end of segment %q", path)
		}
		if end > math.MaxUint32 {
			return nil, errors.Errorf("vlog: segment %q exceeds 4GiB (size %d)", path, end)
		}
		lf.writeOffset = uint32(end)
	}
	return lf, nil
}

// Fid returns the segment's file id.
func (lf *LogFile) Fid() uint32 { return lf.fid }

// Path returns the segment's file path.
func (lf *LogFile) Path() string { return lf.path }

// Readonly reports whether the segment is readonly.
func (lf *LogFile) Readonly() bool { return lf.readonly }

// WriteOffset returns the segment's current write offset. It is only
// meaningful for writable segments; callers must not call it on a readonly
// segment (mirrors the Rust source's write_offset() returning None there).
func (lf *LogFile) WriteOffset() uint32 { return lf.writeOffset }

// ReadBytes seeks to offset and reads exactly length bytes, returning
// kverrors.ErrUnexpectedEOF if fewer bytes are available than requested.
func (lf *LogFile) ReadBytes(offset, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := lf.file.ReadAt(buf, int64(offset)); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errors.Wrapf(kverrors.ErrUnexpectedEOF, "vlog: read %d bytes at offset %d from %q", length, offset, lf.path)
		}
		return nil, errors.Wrapf(err, "vlog: read %d bytes at offset %d from %q", length, offset, lf.path)
	}
	return buf, nil
}

// WriteBytes appends buf at the segment's current write offset, advances the
// write offset by len(buf), and, if sync is true, flushes OS buffers and
// issues a data-sync so the bytes are durable before WriteBytes returns. On
// partial failure the write offset is left at its pre-call value; the
// segment must not be used for further appends in that case.
func (lf *LogFile) WriteBytes(buf []byte, sync bool) error {
	if _, err := lf.file.Seek(int64(lf.writeOffset), io.SeekStart); err != nil {
		return errors.Wrapf(err, "vlog: seek to write offset %d in %q", lf.writeOffset, lf.path)
	}
	n, err := lf.file.Write(buf)
	if err != nil {
		return errors.Wrapf(err, "vlog: write %d bytes to %q", len(buf), lf.path)
	}
	lf.writeOffset += uint32(n)

	if sync {
		if err := lf.file.Sync(); err != nil {
			return errors.Wrapf(err, "vlog: fdatasync %q", lf.path)
		}
	}
	return nil
}

// Close closes the underlying file handle.
func (lf *LogFile) Close() error {
	return lf.file.Close()
}
