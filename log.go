package wal

import (
	"sync"

	"github.com/go-kit/log/level"
)

// WAL is the engine plus facade described by the spec's component table:
// one exclusive lock guarding an active segment, an in-memory index
// mirroring its live tail, and the paired snapshot store. Unlike the
// baseline's process-wide singleton, a *WAL is an ordinary handle — a
// process may hold as many as it has directories for.
type WAL struct {
	mu sync.Mutex

	dir    string
	config Config
	sets   *segmentSet
	snaps  *snapshotStore
	metric *walMetrics

	active *segment
	// entries mirrors the live (post-snapshot) tail of the log, in order.
	// Each element is an owned frame buffer (freshly encoded on Append, or
	// decoded from a private read-all copy on Open/compaction — see
	// segment.go's readAll). Read hands these out directly per the
	// borrowed-bytes contract in §5: callers must not retain them past the
	// next mutating call, since that call may replace w.entries wholesale.
	entries [][]byte

	bytesSinceFsync uint64
	snapshotIndex   uint64

	// poisoned holds the fatal error from a failed mutation, if any. Once
	// set, every subsequent mutating call returns it immediately.
	poisoned error
}

// open implements §4.4's open(dir) operation: create dir if absent, locate
// the active segment id via the SegmentSet's contiguous probe, open it,
// decode it fully, repair a torn tail if found, and populate entries.
func open(dir string, cfg Config) (*WAL, error) {
	cfg.applyDefaults()

	sets := &segmentSet{dir: dir, segmentBytes: cfg.SegmentBytes}
	activeID := sets.bootstrapActiveID()

	active, err := openOrCreateSegment(dir, activeID)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		dir:    dir,
		config: cfg,
		sets:   sets,
		snaps:  &snapshotStore{dir: dir},
		metric: newWALMetrics(cfg.Registerer),
		active: active,
	}

	if err := w.loadEntries(); err != nil {
		active.close()
		return nil, err
	}

	w.metric.residentEntries.Set(float64(len(w.entries)))
	return w, nil
}

// loadEntries decodes the active segment (and, if Config.LoadAllSegments is
// set, every earlier resident segment) into w.entries, repairing a torn
// tail on the active segment if decodeStream reports one.
func (w *WAL) loadEntries() error {
	raw, err := w.active.readAll()
	if err != nil {
		return ioErr("open.readAll", err)
	}
	records, tail := decodeStream(raw)
	if tail < len(raw) {
		level.Debug(w.config.Logger).Log(
			"msg", "torn trailing frame recovered on open",
			"segment", w.active.id, "tail_offset", tail, "file_size", w.active.size)
		if err := w.active.truncateTo(int64(tail)); err != nil {
			return ioErr("open.truncateTo", err)
		}
		w.metric.tornTailRecovered.Inc()
		raw = raw[:tail]
		records, _ = decodeStream(raw)
	}

	if !w.config.LoadAllSegments {
		w.entries = records
		return nil
	}

	var all [][]byte
	for _, id := range w.sets.residentSegmentIDs(w.active.id - 1) {
		seg, err := openOrCreateSegment(w.dir, id)
		if err != nil {
			return err
		}
		segRaw, err := seg.readAll()
		if err != nil {
			seg.close()
			return ioErr("open.readAll", err)
		}
		segRecords, _ := decodeStream(segRaw)
		all = append(all, segRecords...)
		seg.close()
	}
	all = append(all, records...)
	w.entries = all
	return nil
}

func (w *WAL) checkPoisoned() error {
	if w.poisoned != nil {
		return w.poisoned
	}
	return nil
}

func (w *WAL) poison(err error) error {
	w.poisoned = err
	return err
}

// append implements §4.4's append(index, term, key, val) operation.
func (w *WAL) append(index, term uint64, key, val []byte) error {
	if err := w.checkPoisoned(); err != nil {
		return err
	}

	frame := encode(index, term, key, val)
	if err := w.active.append(frame); err != nil {
		return w.poison(ioErr("append", err))
	}
	w.bytesSinceFsync += uint64(len(frame))
	w.metric.bytesWritten.Add(float64(len(frame)))

	if w.bytesSinceFsync >= w.config.FsyncBytes {
		if err := w.active.fsync(); err != nil {
			return w.poison(ioErr("append.fsync", err))
		}
		w.bytesSinceFsync = 0
		w.metric.fsyncs.Inc()
	}

	next, rotated, err := w.sets.rotateIfNeeded(w.active)
	if err != nil {
		return w.poison(ioErr("append.rotate", err))
	}
	w.active = next
	if rotated {
		w.metric.segmentRotations.Inc()
		level.Debug(w.config.Logger).Log("msg", "segment rotated", "new_segment", w.active.id)
	}

	// frame is a freshly allocated buffer owned by no one else; entries can
	// hold it directly without copying.
	w.entries = append(w.entries, frame)
	w.metric.appends.Inc()
	w.metric.residentEntries.Set(float64(len(w.entries)))
	return nil
}

// read implements §4.4's read(position) operation. position is a 0-based
// offset into the in-memory tail, not a Raft index.
func (w *WAL) read(position int) (Record, error) {
	if err := w.checkPoisoned(); err != nil {
		return Record{}, err
	}
	if position < 0 || position >= len(w.entries) {
		return Record{}, ErrOutOfRange
	}
	return decode(w.entries[position]), nil
}

func (w *WAL) length() (int, error) {
	if err := w.checkPoisoned(); err != nil {
		return 0, err
	}
	return len(w.entries), nil
}

func (w *WAL) lastIndex() (uint64, error) {
	if err := w.checkPoisoned(); err != nil {
		return 0, err
	}
	if len(w.entries) == 0 {
		return 0, nil
	}
	return decode(w.entries[len(w.entries)-1]).Index, nil
}

func (w *WAL) lowestIndex() (uint64, error) {
	if err := w.checkPoisoned(); err != nil {
		return 0, err
	}
	if len(w.entries) == 0 {
		return 0, nil
	}
	return decode(w.entries[0]).Index, nil
}

// truncateFrom implements §4.4's truncate_from(position) operation.
func (w *WAL) truncateFrom(position int) error {
	if err := w.checkPoisoned(); err != nil {
		return err
	}
	if position >= len(w.entries) {
		return nil
	}
	if position < 0 {
		position = 0
	}

	// ceilingIndex is the Raft index of the first record being discarded —
	// "the truncation point" in §4.4's extension note. Any resident segment
	// whose every record is at or beyond this index is now entirely
	// discarded and, per the decision in §4.5/SPEC_FULL.md §9, deleted.
	ceilingIndex := decode(w.entries[position]).Index
	surviving := w.entries[:position]

	if err := w.rewriteActive(surviving); err != nil {
		return w.poison(ioErr("truncate_from", err))
	}
	if err := w.deleteSegmentsAtOrAfter(ceilingIndex); err != nil {
		return w.poison(ioErr("truncate_from.delete", err))
	}
	w.metric.truncations.Inc()
	w.metric.residentEntries.Set(float64(len(w.entries)))
	return nil
}

// createSnapshot implements §4.4's create_snapshot(data, last_index)
// operation.
func (w *WAL) createSnapshot(data []byte, lastIndex uint64) error {
	if err := w.checkPoisoned(); err != nil {
		return err
	}

	if err := w.snaps.create(data); err != nil {
		return w.poison(ioErr("create_snapshot", err))
	}
	w.snapshotIndex = lastIndex

	if lastIndex > 0 && lastIndex <= uint64(len(w.entries)) {
		dropped := w.entries[:lastIndex]
		surviving := w.entries[lastIndex:]
		w.metric.recordsCompacted.Add(float64(len(dropped)))

		if err := w.rewriteActive(surviving); err != nil {
			return w.poison(ioErr("create_snapshot.compact", err))
		}
		// Every resident record at or below snapshotIndex is now absorbed
		// by the snapshot (Invariant Sn1); any earlier segment that is
		// entirely below it is an optimization-only deletion (§4.4's note,
		// decided "yes" in SPEC_FULL.md §9).
		if err := w.deleteSegmentsBelow(w.snapshotIndex + 1); err != nil {
			return w.poison(ioErr("create_snapshot.delete", err))
		}
	}

	w.metric.snapshots.Inc()
	w.metric.residentEntries.Set(float64(len(w.entries)))
	return nil
}

// rewriteActive rewrites the active segment from the surviving in-memory
// tail and installs it as the new entries (§4.2's rewrite contract,
// shared by TruncateFrom and CreateSnapshot's compaction step).
func (w *WAL) rewriteActive(surviving [][]byte) error {
	frames := make([][]byte, len(surviving))
	copy(frames, surviving)

	if err := w.active.rewrite(frames); err != nil {
		return err
	}
	w.entries = frames
	return nil
}

// deleteSegmentsBelow removes every earlier resident segment whose highest
// record index is strictly below floorIndex — the prefix-compaction
// deletion used by CreateSnapshot.
func (w *WAL) deleteSegmentsBelow(floorIndex uint64) error {
	return w.scanAndDeleteEarlierSegments(func(firstIdx, lastIdx uint64) bool {
		return lastIdx < floorIndex
	})
}

// deleteSegmentsAtOrAfter removes every earlier resident segment whose
// lowest record index is at or beyond ceilingIndex — the suffix-truncation
// deletion used by TruncateFrom. It only matches when the truncation
// boundary lies in an earlier segment, which happens when entries reach
// back past the active segment: after LoadAllSegments decoded earlier
// segments on open, or after segments were rotated since Open (entries
// keep every record appended in this session, whichever segment holds it).
func (w *WAL) deleteSegmentsAtOrAfter(ceilingIndex uint64) error {
	return w.scanAndDeleteEarlierSegments(func(firstIdx, lastIdx uint64) bool {
		return firstIdx >= ceilingIndex
	})
}

func (w *WAL) scanAndDeleteEarlierSegments(shouldDelete func(firstIdx, lastIdx uint64) bool) error {
	for _, id := range w.sets.residentSegmentIDs(w.active.id - 1) {
		seg, err := openOrCreateSegment(w.dir, id)
		if err != nil {
			return err
		}
		segRaw, err := seg.readAll()
		if err != nil {
			seg.close()
			return err
		}
		segRecords, _ := decodeStream(segRaw)
		if len(segRecords) == 0 {
			seg.close()
			continue
		}
		firstIdx := decode(segRecords[0]).Index
		lastIdx := decode(segRecords[len(segRecords)-1]).Index
		if shouldDelete(firstIdx, lastIdx) {
			if err := seg.remove(); err != nil {
				return err
			}
			continue
		}
		seg.close()
	}
	return nil
}

// loadSnapshot implements §4.4's load_snapshot() operation.
func (w *WAL) loadSnapshot() ([]byte, uint64, error) {
	if err := w.checkPoisoned(); err != nil {
		return nil, 0, err
	}
	data, err := w.snaps.load()
	if err != nil {
		return nil, 0, err
	}
	return data, w.snapshotIndex, nil
}

// sync flushes the active segment, for callers that need per-record
// durability beyond the engine's batched fsync (§9).
func (w *WAL) sync() error {
	if err := w.checkPoisoned(); err != nil {
		return err
	}
	if err := w.active.fsync(); err != nil {
		return w.poison(ioErr("sync", err))
	}
	w.bytesSinceFsync = 0
	w.metric.fsyncs.Inc()
	return nil
}

// closeEngine fsyncs once before shutdown (§4.4), releases the active
// segment's file handle, and poisons the handle with ErrClosed so every
// call made after Close — including the read-only ones, which consult
// poisoned through checkPoisoned — fails instead of silently succeeding
// against a closed file. A handle already poisoned by an *IOError keeps
// that error.
func (w *WAL) closeEngine() error {
	if w.poisoned != nil {
		return w.active.close()
	}
	if err := w.active.fsync(); err != nil {
		w.active.close()
		w.poisoned = ErrClosed
		return ioErr("close.fsync", err)
	}
	err := w.active.close()
	w.poisoned = ErrClosed
	return err
}
