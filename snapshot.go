package wal

import (
	"os"
	"path/filepath"
)

const (
	snapshotFileName    = "snapshot.bin"
	snapshotTmpFileName = "snapshot.bin.tmp"
)

// snapshotStore holds the opaque snapshot.bin blob, per §4.5. It is
// write-once-per-snapshot: a new snapshot overwrites the prior atomically
// via temp-file + rename, so a concurrent crash leaves either the old or
// the new snapshot intact, never a half-written one. The paired
// snapshot_index lives in the Log Engine's in-memory state (§4.5 notes a
// persistent copy may live inside the opaque blob itself, which is the
// caller's business, not this store's).
type snapshotStore struct {
	dir string
}

func (s *snapshotStore) path() string {
	return filepath.Join(s.dir, snapshotFileName)
}

func (s *snapshotStore) tmpPath() string {
	return filepath.Join(s.dir, snapshotTmpFileName)
}

// create writes data atomically to snapshot.bin: write to snapshot.bin.tmp,
// fsync, rename over snapshot.bin.
func (s *snapshotStore) create(data []byte) error {
	tmp := s.tmpPath()
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

// load reads snapshot.bin in full. It returns ErrNotFound if the file is
// absent.
func (s *snapshotStore) load() ([]byte, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}
