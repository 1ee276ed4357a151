// Package wal implements a segmented write-ahead log with snapshotting,
// suitable for backing the durable-log requirement of a replicated state
// machine such as a Raft peer. It persists an ordered sequence of
// (index, term, key, val) records to disk, replays them on restart,
// supports suffix truncation of uncommitted tails, and supports periodic
// snapshotting that compacts the prefix of the log.
//
// A *WAL is an ordinary handle: a process may open as many independent
// directories as it needs, each with its own lock, in-memory index, and
// snapshot store. There is no package-level shared state.
package wal

import "os"

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// Open opens the WAL stored in dir, creating it (and the directory) if it
// does not yet exist. If existing segments are found, they are recovered:
// the active segment is decoded and any torn trailing frame left by a
// crash mid-append is truncated away. See Config for tunables.
func Open(dir string, opts ...Option) (*WAL, error) {
	if dir == "" {
		return nil, ErrInvalidPath
	}
	if err := ensureDir(dir); err != nil {
		return nil, ioErr("open.mkdir", err)
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return open(dir, cfg)
}

// Append persists one record. Per §3, the caller is responsible for
// ensuring index is strictly greater than the previous successful
// append's index and term is non-decreasing; the engine does not enforce
// this. Append returns a poisoning *IOError if the underlying write or its
// batched fsync fails; once that happens every subsequent mutating call on
// this handle fails until the caller drops it and calls Open again.
func (w *WAL) Append(index, term uint64, key, val []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(index, term, key, val)
}

// Read returns the record at the given 0-based position in the in-memory
// tail — not a Raft index. The returned Record's Key and Val slices are
// borrowed from the in-memory index and are invalidated by the next
// Append, TruncateFrom, or CreateSnapshot; call Record.Clone to retain one
// across such a call.
func (w *WAL) Read(position int) (Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.read(position)
}

// Len returns the number of entries currently resident in the in-memory
// index — the physical accessor the REDESIGN FLAGS ask for, as distinct
// from LastIndex. It returns ErrClosed if the handle has been closed, or the
// poisoning *IOError if a prior fatal I/O error poisoned it.
func (w *WAL) Len() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.length()
}

// LastIndex returns the Raft index of the last resident entry, or 0 if the
// index is empty. Unlike Len, this tracks the record's own encoded index
// field, not a physical position — the logical accessor the REDESIGN FLAGS
// ask for. It returns ErrClosed if the handle has been closed, or the
// poisoning *IOError if a prior fatal I/O error poisoned it.
func (w *WAL) LastIndex() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastIndex()
}

// LowestIndex returns the Raft index of the first resident entry, or 0 if
// the index is empty. It returns ErrClosed if the handle has been closed, or
// the poisoning *IOError if a prior fatal I/O error poisoned it.
func (w *WAL) LowestIndex() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lowestIndex()
}

// TruncateFrom drops every entry at and beyond position from the
// in-memory index and rewrites the active segment from the surviving
// tail. A position at or beyond Len() is a no-op.
func (w *WAL) TruncateFrom(position int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncateFrom(position)
}

// CreateSnapshot writes data atomically as the WAL's snapshot and records
// lastIndex as the highest index it covers. If 0 < lastIndex <= Len(), the
// first lastIndex resident entries are compacted away and the active
// segment is rewritten from the surviving tail; otherwise no entry is
// dropped. lastIndex is used as a count of positions, not compared with the
// entries' Raft indices, so the dropped entries are exactly those with
// index <= lastIndex only when the resident indices run 1, 2, 3, ….
func (w *WAL) CreateSnapshot(data []byte, lastIndex uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.createSnapshot(data, lastIndex)
}

// LoadSnapshot returns the current snapshot's bytes and its paired
// snapshot index. It returns ErrNotFound if no snapshot has been created
// yet. The returned slice is a fresh copy the caller owns outright.
func (w *WAL) LoadSnapshot() ([]byte, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadSnapshot()
}

// Sync flushes the active segment to stable storage immediately, for
// callers that need durability stronger than the engine's batched fsync
// (§9's open question, resolved by adding this method).
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sync()
}

// Close fsyncs the active segment once and releases its file handle. The
// handle must not be used again afterward.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeEngine()
}
