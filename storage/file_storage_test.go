package storage

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/anthrax3/OrigoDB/serializer"
)

type counterModel struct {
	N int
}

func TestFileStorageCreateAndRetrieve(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")
	fs, err := NewFileStorage(dir, serializer.New())
	assert.NilError(t, err)

	canCreate, err := fs.CanCreate()
	assert.NilError(t, err)
	assert.Equal(t, canCreate, true)

	assert.NilError(t, fs.Create(counterModel{N: 1}))

	exists, err := fs.Exists()
	assert.NilError(t, err)
	assert.Equal(t, exists, true)

	var out counterModel
	found, segment, err := fs.GetMostRecentSnapshot(&out)
	assert.NilError(t, err)
	assert.Equal(t, found, true)
	assert.Equal(t, segment, NoSnapshotSegment)
	assert.DeepEqual(t, out, counterModel{N: 1})
}

func TestFileStorageCreateFailsWhenAlreadyPopulated(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir, serializer.New())
	assert.NilError(t, err)

	assert.NilError(t, fs.Create(counterModel{N: 1}))
	assert.Error(t, fs.Create(counterModel{N: 2}), ErrExists.Error())
}

func TestFileStorageWriteSnapshotOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStorage(dir, serializer.New())
	assert.NilError(t, err)

	assert.NilError(t, fs.Create(counterModel{N: 1}))
	assert.NilError(t, fs.WriteSnapshot(counterModel{N: 42}, "checkpoint", SegmentInfo{Number: 3}))

	var out counterModel
	found, segment, err := fs.GetMostRecentSnapshot(&out)
	assert.NilError(t, err)
	assert.Equal(t, found, true)
	assert.Equal(t, segment, SegmentInfo{Number: 3})
	assert.DeepEqual(t, out, counterModel{N: 42})
}

func TestFileStorageVerifyCanLoadAbsent(t *testing.T) {
	fs, err := NewFileStorage(t.TempDir(), serializer.New())
	assert.NilError(t, err)
	assert.Error(t, fs.VerifyCanLoad(), ErrAbsent.Error())
}
