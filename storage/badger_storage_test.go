package storage

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/anthrax3/OrigoDB/serializer"
)

func TestBadgerStorageCreateAndRetrieve(t *testing.T) {
	bs, err := OpenBadgerStorage(t.TempDir(), serializer.New())
	assert.NilError(t, err)
	defer bs.Close()

	assert.NilError(t, bs.Create(counterModel{N: 7}))

	var out counterModel
	found, segment, err := bs.GetMostRecentSnapshot(&out)
	assert.NilError(t, err)
	assert.Equal(t, found, true)
	assert.Equal(t, segment, NoSnapshotSegment)
	assert.DeepEqual(t, out, counterModel{N: 7})
}

func TestBadgerStorageWriteSnapshotUpdatesSegment(t *testing.T) {
	bs, err := OpenBadgerStorage(t.TempDir(), serializer.New())
	assert.NilError(t, err)
	defer bs.Close()

	assert.NilError(t, bs.Create(counterModel{N: 1}))
	assert.NilError(t, bs.WriteSnapshot(counterModel{N: 99}, "checkpoint", SegmentInfo{Number: 5}))

	var out counterModel
	found, segment, err := bs.GetMostRecentSnapshot(&out)
	assert.NilError(t, err)
	assert.Equal(t, found, true)
	assert.Equal(t, segment, SegmentInfo{Number: 5})
	assert.DeepEqual(t, out, counterModel{N: 99})
}

func TestBadgerStorageCreateFailsWhenPopulated(t *testing.T) {
	bs, err := OpenBadgerStorage(t.TempDir(), serializer.New())
	assert.NilError(t, err)
	defer bs.Close()

	assert.NilError(t, bs.Create(counterModel{N: 1}))
	assert.Error(t, bs.Create(counterModel{N: 2}), ErrExists.Error())
}
