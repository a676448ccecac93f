package vlog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/wisckeydb/storage/kverrors"
)

// logSuffix is the fixed filename extension of a value log segment.
const logSuffix = "vlog"

// Options configures ValueLog.Open.
type Options struct {
	// Dir is the directory holding the value log's segment files. Created if
	// it does not already exist.
	Dir string
	// SegmentMaxSize is the soft size limit (in bytes) that triggers
	// rollover to a new segment before the next write batch. Must be
	// representable in a u32 (segments are capped at 4GiB).
	SegmentMaxSize uint32
	// Sync, when true, makes every Write durable (fdatasync-equivalent)
	// before it returns.
	Sync bool
}

// ValueLog is the directory-level object owning a set of segments, exactly
// one of which ("the active segment", identified by curFid) is writable.
type ValueLog struct {
	dirPath        string
	segmentMaxSize uint32
	sync           bool
	segments       map[uint32]*LogFile
	curFid         uint32
	encodeBuf      bytes.Buffer
}

// Open opens (or creates) a value log directory per opt. Segment file stems
// must parse as base-10 u32 fids; an unparsable stem fails Open with
// kverrors.ErrInvalidFilename. The largest fid, if any exist, becomes the
// writable active segment; all others are opened readonly. If no segments
// exist, fid 0 is created as the active segment.
func Open(opt Options) (*ValueLog, error) {
	if err := os.MkdirAll(opt.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "vlog: mkdir %q", opt.Dir)
	}

	entries, err := os.ReadDir(opt.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "vlog: read dir %q", opt.Dir)
	}

	var fids []uint32
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != "."+logSuffix {
			continue
		}
		stem := strings.TrimSuffix(name, "."+logSuffix)
		fid, err := parseFid(stem)
		if err != nil {
			return nil, errors.Wrapf(kverrors.ErrInvalidFilename, "vlog: %q: %v", name, err)
		}
		fids = append(fids, fid)
	}
	sort.Slice(fids, func(i, j int) bool { return fids[i] < fids[j] })

	segments := make(map[uint32]*LogFile, len(fids)+1)
	var curFid uint32
	if len(fids) > 0 {
		curFid = fids[len(fids)-1]
		for _, fid := range fids[:len(fids)-1] {
			path := filepath.Join(opt.Dir, fidToFilename(fid))
			file, err := os.OpenFile(path, os.O_RDONLY, 0o644)
			if err != nil {
				return nil, errors.Wrapf(err, "vlog: open readonly segment %q", path)
			}
			lf, err := openLogFile(fid, path, file, true)
			if err != nil {
				return nil, err
			}
			segments[fid] = lf
		}
	}

	curPath := filepath.Join(opt.Dir, fidToFilename(curFid))
	curFile, err := os.OpenFile(curPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "vlog: open active segment %q", curPath)
	}
	curLog, err := openLogFile(curFid, curPath, curFile, false)
	if err != nil {
		return nil, err
	}
	segments[curFid] = curLog

	return &ValueLog{
		dirPath:        opt.Dir,
		segmentMaxSize: opt.SegmentMaxSize,
		sync:           opt.Sync,
		segments:       segments,
		curFid:         curFid,
	}, nil
}

func parseFid(stem string) (uint32, error) {
	n, err := strconv.ParseUint(stem, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// fidToFilename renders fid in the canonical zero-padded-to-6 form, e.g.
// fid 12 -> "000012.vlog".
func fidToFilename(fid uint32) string {
	return fmt.Sprintf("%06d.%s", fid, logSuffix)
}

// ActiveSegment returns the currently writable segment.
func (vl *ValueLog) ActiveSegment() *LogFile {
	return vl.segments[vl.curFid]
}

// WriteOffset returns the active segment's current write offset.
func (vl *ValueLog) WriteOffset() uint32 {
	return vl.ActiveSegment().WriteOffset()
}

// shouldRollover reports whether the active segment has reached or exceeded
// SegmentMaxSize, meaning the next batch must land in a fresh segment.
func (vl *ValueLog) shouldRollover() bool {
	return vl.ActiveSegment().WriteOffset() >= vl.segmentMaxSize
}

// Write appends entries to the value log as a single atomic batch: either
// every entry lands in the pre-rollover segment, or the whole batch lands in
// the post-rollover segment. Returns one ValuePointer per entry, in order.
func (vl *ValueLog) Write(entries []Value) ([]ValuePointer, error) {
	if vl.shouldRollover() {
		if err := vl.rollover(); err != nil {
			return nil, err
		}
	}

	vl.encodeBuf.Reset()
	pointers := make([]ValuePointer, 0, len(entries))

	cur := vl.ActiveSegment().WriteOffset()
	for _, e := range entries {
		recLen := encodedLen(e)
		before := vl.encodeBuf.Len()
		if _, err := e.Encode(&vl.encodeBuf); err != nil {
			return nil, err
		}
		if uint32(vl.encodeBuf.Len()-before) != recLen {
			return nil, errors.Errorf("vlog: encoded length mismatch: got %d want %d", vl.encodeBuf.Len()-before, recLen)
		}
		pointers = append(pointers, ValuePointer{
			Fid:    vl.curFid,
			Offset: cur,
			Len:    recLen,
		})
		cur += recLen
	}

	if err := vl.ActiveSegment().WriteBytes(vl.encodeBuf.Bytes(), vl.sync); err != nil {
		return nil, err
	}

	return pointers, nil
}

// rollover makes the active segment readonly and creates a new, higher-fid
// active segment. The active segment is removed from the map, its writable
// handle closed, then reopened readonly and reinstalled under the same fid;
// cur_fid is then incremented and a brand-new segment is created.
func (vl *ValueLog) rollover() error {
	old := vl.segments[vl.curFid]
	delete(vl.segments, vl.curFid)
	path := old.Path()
	if err := old.Close(); err != nil {
		return errors.Wrapf(err, "vlog: close active segment %q before rollover", path)
	}

	roFile, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "vlog: reopen %q readonly after rollover", path)
	}
	roSegment, err := openLogFile(vl.curFid, path, roFile, true)
	if err != nil {
		return err
	}
	vl.segments[vl.curFid] = roSegment

	vl.curFid++
	newPath := filepath.Join(vl.dirPath, fidToFilename(vl.curFid))
	newFile, err := os.OpenFile(newPath, os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "vlog: create new active segment %q", newPath)
	}
	newSegment, err := openLogFile(vl.curFid, newPath, newFile, false)
	if err != nil {
		return err
	}
	vl.segments[vl.curFid] = newSegment

	return nil
}

// Read resolves a ValuePointer to its Value, verifying the record's CRC.
func (vl *ValueLog) Read(p ValuePointer) (Value, error) {
	if p.Fid == vl.curFid && p.Offset >= vl.ActiveSegment().WriteOffset() {
		return Value{}, kverrors.ErrUnexpectedEOF
	}

	segment, ok := vl.segments[p.Fid]
	if !ok {
		return Value{}, kverrors.ErrUnexpectedEOF
	}

	buf, err := segment.ReadBytes(p.Offset, p.Len)
	if err != nil {
		return Value{}, err
	}

	return Decode(bytes.NewReader(buf))
}

// Close closes every open segment.
func (vl *ValueLog) Close() error {
	var firstErr error
	for _, lf := range vl.segments {
		if err := lf.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
