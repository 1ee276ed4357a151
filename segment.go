package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tysonmote/gommap"
)

// segmentIDWidth is the number of zero-padded decimal digits in a segment's
// file name: {SSSSSSSS}.log.
const segmentIDWidth = 8

func segmentPath(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%0*d.log", segmentIDWidth, id))
}

// segment owns one append-only file. Per Invariant S2, at most one resident
// segment (the highest id) is ever open for append at a time; this type is
// also used transiently for earlier segments probed during recovery or
// compaction.
type segment struct {
	dir  string
	id   uint64
	file *os.File
	size int64
}

// openOrCreateSegment opens dir/{id}.log, creating it if absent, and
// reports its current size. It implements §4.2's open_or_create contract.
func openOrCreateSegment(dir string, id uint64) (*segment, error) {
	path := segmentPath(dir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{dir: dir, id: id, file: f, size: fi.Size()}, nil
}

// readAll returns a private copy of the segment's entire current contents.
// It memory-maps the file read-only via gommap rather than issuing a
// buffered read(2) loop — the same tool the teacher reaches for to get fast
// access to on-disk bytes, applied here to bulk-decoding a segment instead
// of to a side index file, since this format's directory layout (§6) has
// no room for one. The mapping is torn down before returning; the copy the
// caller gets back owns its own memory, so it is never invalidated by a
// later write to the file.
func (s *segment) readAll() ([]byte, error) {
	if s.size == 0 {
		return nil, nil
	}
	mm, err := gommap.Map(s.file.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	defer mm.UnsafeUnmap()
	buf := make([]byte, s.size)
	copy(buf, mm[:s.size])
	return buf, nil
}

// append writes frame in full to the end of the file, or fails; no short
// writes are tolerated (§4.2).
func (s *segment) append(frame []byte) error {
	n, err := s.file.WriteAt(frame, s.size)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("segment %d: short write: wrote %d of %d bytes", s.id, n, len(frame))
	}
	s.size += int64(n)
	return nil
}

// fsync flushes the file to stable storage.
func (s *segment) fsync() error {
	return s.file.Sync()
}

// truncateTo sets the file's length to offset, discarding everything past
// it. Used on open to repair a torn trailing frame (§4.1, §4.4).
func (s *segment) truncateTo(offset int64) error {
	if err := s.file.Truncate(offset); err != nil {
		return err
	}
	s.size = offset
	return nil
}

// rewrite sets the file's length to 0, seeks to 0, and rewrites the given
// frames in order, then flushes (§4.2). Used by TruncateFrom and
// CreateSnapshot compaction to rebuild the active segment from its
// surviving tail.
func (s *segment) rewrite(frames [][]byte) error {
	if err := s.file.Truncate(0); err != nil {
		return err
	}
	if _, err := s.file.Seek(0, 0); err != nil {
		return err
	}
	var total int64
	for _, frame := range frames {
		n, err := s.file.WriteAt(frame, total)
		if err != nil {
			return err
		}
		if n != len(frame) {
			return fmt.Errorf("segment %d: short write during rewrite: wrote %d of %d bytes", s.id, n, len(frame))
		}
		total += int64(n)
	}
	s.size = total
	return s.file.Sync()
}

// remove closes the segment and deletes its file from disk. Used when
// snapshot compaction or suffix truncation determines that a whole earlier
// segment no longer holds any live record.
func (s *segment) remove() error {
	path := s.file.Name()
	if err := s.close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func (s *segment) close() error {
	return s.file.Close()
}
