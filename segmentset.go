package wal

import (
	"os"
)

// segmentSet enumerates, orders, opens, and rolls over the segments in a
// WAL directory, per §4.3. The Log Engine depends on this type rather than
// walking the directory itself, the way dreamsxin-wal factors its
// SegmentFiler out of the WAL type.
type segmentSet struct {
	dir          string
	segmentBytes uint64
}

// bootstrapActiveID implements §4.3's contiguous probe: start at id 1 and
// walk upward while {id+1}.log exists. If no segment exists at all, id 1 is
// the (not yet created) active segment. Gaps in numbering are not expected;
// if encountered, the lower contiguous end is authoritative — the scan
// simply stops at the first missing id, which is exactly what a contiguous
// walk does without any extra bookkeeping.
func (ss *segmentSet) bootstrapActiveID() uint64 {
	id := uint64(1)
	for {
		if _, err := os.Stat(segmentPath(ss.dir, id+1)); err != nil {
			return id
		}
		id++
	}
}

// rotateIfNeeded closes the given active segment and opens the next one if
// the active segment's size has reached or exceeded the configured
// threshold (§3, §4.3). It returns the segment that should be active going
// forward — either the same one (no rotation) or a freshly opened one.
func (ss *segmentSet) rotateIfNeeded(active *segment) (*segment, bool, error) {
	if uint64(active.size) < ss.segmentBytes {
		return active, false, nil
	}
	next, err := openOrCreateSegment(ss.dir, active.id+1)
	if err != nil {
		return active, false, err
	}
	if err := active.close(); err != nil {
		next.close()
		return active, false, err
	}
	return next, true, nil
}

// residentSegmentIDs lists the id of every {id}.log file in dir with
// 1 <= id <= upTo, in ascending order. Used by the Log Engine to find segments eligible for deletion
// during compaction/truncation and, when Config.LoadAllSegments is set, to
// decode the whole log at open time.
func (ss *segmentSet) residentSegmentIDs(upTo uint64) []uint64 {
	var ids []uint64
	for id := uint64(1); id <= upTo; id++ {
		if _, err := os.Stat(segmentPath(ss.dir, id)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
