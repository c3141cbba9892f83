package storage

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthrax3/OrigoDB/serializer"
)

const (
	snapshotFileName = "snapshot.db"
	snapshotTempName = "snapshot.db.tmp"
)

// snapshotRecord is the single gob-encoded payload written into the
// snapshot file: header fields plus the raw serialized model bytes. Keeping
// everything in one file means a single os.Rename is enough to make a
// snapshot atomically visible, following the temp-then-rename idiom the
// teacher uses for its own segment and snapshot files.
type snapshotRecord struct {
	Name    string
	Segment SegmentInfo
	Data    []byte
}

// FileStorage is a directory-backed Storage: one file holds the current
// snapshot head, written to a temp path in the same directory and renamed
// into place so readers never observe a partial write.
type FileStorage struct {
	dir        string
	serializer serializer.Serializer
}

// NewFileStorage returns a FileStorage rooted at dir. dir need not exist yet
// for Create; it must exist for every other operation to observe a prior
// snapshot.
func NewFileStorage(dir string, s serializer.Serializer) (*FileStorage, error) {
	return &FileStorage{dir: dir, serializer: s}, nil
}

func (fs *FileStorage) snapshotPath() string {
	return filepath.Join(fs.dir, snapshotFileName)
}

func (fs *FileStorage) Exists() (bool, error) {
	_, err := os.Stat(fs.snapshotPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: stat snapshot: %w", err)
	}
	return true, nil
}

func (fs *FileStorage) CanCreate() (bool, error) {
	exists, err := fs.Exists()
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (fs *FileStorage) VerifyCanLoad() error {
	exists, err := fs.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return ErrAbsent
	}

	f, err := os.Open(fs.snapshotPath())
	if err != nil {
		return fmt.Errorf("storage: open snapshot: %w", err)
	}
	defer f.Close()

	var rec snapshotRecord
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	return nil
}

func (fs *FileStorage) Create(model any) error {
	canCreate, err := fs.CanCreate()
	if err != nil {
		return err
	}
	if !canCreate {
		return ErrExists
	}

	if err := os.MkdirAll(fs.dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	return fs.WriteSnapshot(model, "auto", NoSnapshotSegment)
}

func (fs *FileStorage) GetMostRecentSnapshot(out any) (bool, SegmentInfo, error) {
	exists, err := fs.Exists()
	if err != nil {
		return false, NoSnapshotSegment, err
	}
	if !exists {
		return false, NoSnapshotSegment, nil
	}

	f, err := os.Open(fs.snapshotPath())
	if err != nil {
		return false, NoSnapshotSegment, fmt.Errorf("storage: open snapshot: %w", err)
	}
	defer f.Close()

	var rec snapshotRecord
	if err := gob.NewDecoder(f).Decode(&rec); err != nil {
		return false, NoSnapshotSegment, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}

	if err := fs.serializer.Deserialize(rec.Data, out); err != nil {
		return false, NoSnapshotSegment, fmt.Errorf("storage: decode snapshot model: %w", err)
	}
	return true, rec.Segment, nil
}

func (fs *FileStorage) WriteSnapshot(model any, name string, segment SegmentInfo) error {
	if name == "" {
		name = "auto"
	}

	data, err := fs.serializer.Serialize(model)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot model: %w", err)
	}

	rec := snapshotRecord{Name: name, Segment: segment, Data: data}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return fmt.Errorf("storage: encode snapshot record: %w", err)
	}

	tempPath := filepath.Join(fs.dir, snapshotTempName)
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage: create temp snapshot: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("storage: write temp snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("storage: sync temp snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("storage: close temp snapshot: %w", err)
	}

	if err := os.Rename(tempPath, fs.snapshotPath()); err != nil {
		return fmt.Errorf("storage: rename snapshot into place: %w", err)
	}
	return nil
}

func (fs *FileStorage) Close() error {
	return nil
}
