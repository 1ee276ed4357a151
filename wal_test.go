package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustLen(t *testing.T, w *WAL) int {
	t.Helper()
	n, err := w.Len()
	require.NoError(t, err)
	return n
}

func mustLastIndex(t *testing.T, w *WAL) uint64 {
	t.Helper()
	idx, err := w.LastIndex()
	require.NoError(t, err)
	return idx
}

func mustLowestIndex(t *testing.T, w *WAL) uint64 {
	t.Helper()
	idx, err := w.LowestIndex()
	require.NoError(t, err)
	return idx
}

func TestAppendReadLen(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(1, 1, []byte("k1"), []byte("v1")))
	require.NoError(t, w.Append(2, 1, []byte("k2"), []byte("v2")))
	require.NoError(t, w.Append(3, 1, []byte("k3"), []byte("v3")))

	require.Equal(t, 3, mustLen(t, w))
	require.Equal(t, uint64(3), mustLastIndex(t, w))
	require.Equal(t, uint64(1), mustLowestIndex(t, w))

	rec, err := w.Read(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), rec.Index)
	require.Equal(t, []byte("k2"), rec.Key)
	require.Equal(t, []byte("v2"), rec.Val)
}

func TestReadOutOfRange(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Read(0)
	require.ErrorIs(t, err, ErrOutOfRange)

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("v")))
	_, err = w.Read(1)
	require.ErrorIs(t, err, ErrOutOfRange)
	_, err = w.Read(-1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestReopenRecoversEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, w.Append(i, 1, []byte("k"), []byte("v")))
	}
	require.NoError(t, w.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 5, mustLen(t, reopened))
	require.Equal(t, uint64(5), mustLastIndex(t, reopened))
}

func TestReopenTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, w.Append(1, 1, []byte("k1"), []byte("v1")))
	require.NoError(t, w.Append(2, 1, []byte("k2"), []byte("v2")))
	require.NoError(t, w.Close())

	path := filepath.Join(dir, "00000001.log")
	fi, err := os.Stat(path)
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_WRONLY, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(fi.Size()-2))
	require.NoError(t, f.Close())

	reopened, err := Open(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, 1, mustLen(t, reopened))
	require.Equal(t, uint64(1), mustLastIndex(t, reopened))
}

func TestAppendRotatesAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, WithSegmentBytes(4<<10), WithLoadAllSegments(true))
	require.NoError(t, err)
	defer w.Close()

	val := make([]byte, 256)
	const total = 100
	for i := uint64(1); i <= total; i++ {
		require.NoError(t, w.Append(i, 1, []byte("key"), val))
	}

	require.Equal(t, total, mustLen(t, w))
	require.Equal(t, uint64(total), mustLastIndex(t, w))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var segments int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			segments++
		}
	}
	require.Greater(t, segments, 1)
}

// TestReopenAfterRotationDefaultPolicyKeepsOnlyActiveSegment exercises
// spec.md §8 scenario 3 directly: under the default open policy
// (LoadAllSegments=false), a reopen after rotation must resurrect only the
// active segment's resident entries, not the full history.
func TestReopenAfterRotationDefaultPolicyKeepsOnlyActiveSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, WithSegmentBytes(4<<10))
	require.NoError(t, err)

	val := make([]byte, 256)
	const total = 100
	for i := uint64(1); i <= total; i++ {
		require.NoError(t, w.Append(i, 1, []byte("key"), val))
	}
	require.Equal(t, total, mustLen(t, w))
	require.NoError(t, w.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var segments int
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".log" {
			segments++
		}
	}
	require.Greater(t, segments, 1, "test requires rotation across multiple segments")

	reopened, err := Open(dir, WithSegmentBytes(4<<10))
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(total), mustLastIndex(t, reopened))
	require.Less(t, mustLen(t, reopened), total, "default policy should resurrect only the active segment, not the full history")
	require.Greater(t, mustLen(t, reopened), 0)
}

func TestTruncateFromDropsTail(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, w.Append(i, 1, []byte("k"), []byte("v")))
	}
	require.NoError(t, w.TruncateFrom(2))
	require.Equal(t, 2, mustLen(t, w))
	require.Equal(t, uint64(2), mustLastIndex(t, w))

	rec, err := w.Read(1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), rec.Index)
}

func TestTruncateFromNoopPastEnd(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("v")))
	require.NoError(t, w.TruncateFrom(10))
	require.Equal(t, 1, mustLen(t, w))
}

func TestCreateSnapshotCompactsCoveredEntries(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, w.Append(i, 1, []byte("k"), []byte("v")))
	}
	require.NoError(t, w.CreateSnapshot([]byte("snap"), 3))

	require.Equal(t, 2, mustLen(t, w))
	require.Equal(t, uint64(4), mustLowestIndex(t, w))
	require.Equal(t, uint64(5), mustLastIndex(t, w))

	data, snapIdx, err := w.LoadSnapshot()
	require.NoError(t, err)
	require.Equal(t, []byte("snap"), data)
	require.Equal(t, uint64(3), snapIdx)
}

func TestCreateSnapshotBeyondResidentIsNoopOnEntries(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("v")))
	require.NoError(t, w.CreateSnapshot([]byte("snap"), 100))
	require.Equal(t, 1, mustLen(t, w))
}

func TestLoadSnapshotNotFound(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	_, _, err = w.LoadSnapshot()
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLargeValueTriggersFullFrameRotation(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, WithSegmentBytes(4<<20))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("small")))
	big := make([]byte, 5<<20)
	require.NoError(t, w.Append(2, 1, []byte("bigkey"), big))
	require.NoError(t, w.Append(3, 1, []byte("k3"), []byte("after")))

	require.Equal(t, 3, mustLen(t, w))
	require.FileExists(t, filepath.Join(dir, "00000002.log"))
}

func TestAppendAfterIOErrorStaysPoisoned(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("v")))
	w.poisoned = ioErr("test", os.ErrClosed)

	err = w.Append(2, 1, []byte("k"), []byte("v"))
	require.Error(t, err)
	_, err = w.Read(0)
	require.Error(t, err)
}

func TestCloseThenReadOnlyCallsReturnErrClosed(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("v")))
	require.NoError(t, w.Close())

	_, err = w.Read(0)
	require.ErrorIs(t, err, ErrClosed)
	_, err = w.Len()
	require.ErrorIs(t, err, ErrClosed)
	_, err = w.LastIndex()
	require.ErrorIs(t, err, ErrClosed)
	_, err = w.LowestIndex()
	require.ErrorIs(t, err, ErrClosed)
	_, _, err = w.LoadSnapshot()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, w.Append(2, 1, []byte("k"), []byte("v")), ErrClosed)
	require.ErrorIs(t, w.TruncateFrom(0), ErrClosed)
	require.ErrorIs(t, w.CreateSnapshot([]byte("x"), 1), ErrClosed)
	require.ErrorIs(t, w.Sync(), ErrClosed)
}

func TestSync(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(1, 1, []byte("k"), []byte("v")))
	require.NoError(t, w.Sync())
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open("")
	require.ErrorIs(t, err, ErrInvalidPath)
}
