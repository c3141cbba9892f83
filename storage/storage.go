// Package storage defines the pluggable snapshot-persistence collaborator
// the Engine uses to read and write Model snapshots, and the journal-segment
// bookkeeping that ties a snapshot to the journal position it was taken at.
// Two implementations are provided: FileStorage, a directory holding a
// single snapshot file replaced by atomic temp-then-rename writes, and
// BadgerStorage, an
// embedded-KV-backed alternative.
package storage

import (
	"errors"

	"github.com/anthrax3/OrigoDB/serializer"
)

// ErrExists is returned by Create when the storage location already
// contains a snapshot.
var ErrExists = errors.New("storage: already exists")

// ErrAbsent is returned by a Storage method that requires an existing
// location when none is present.
var ErrAbsent = errors.New("storage: does not exist")

// ErrIncompatible is returned by VerifyCanLoad when the location is
// present but not usable by this Storage implementation (wrong format,
// unreadable header, unsupported version).
var ErrIncompatible = errors.New("storage: incompatible")

// SegmentInfo identifies a journal segment. Segment numbering starts at 0
// and increases by exactly one on every CommandJournal.CreateNextSegment
// call, so SegmentInfo can be compared for ordering as well as equality.
type SegmentInfo struct {
	Number int64
}

// NoSnapshotSegment is the SegmentInfo returned by GetMostRecentSnapshot
// when no snapshot exists yet: recovery resumes from the very first segment.
var NoSnapshotSegment = SegmentInfo{Number: 0}

// Storage is a named location holding at most one "head" snapshot plus the
// journal-segment bookkeeping needed to resume replay after loading it.
// Implementations must make WriteSnapshot atomically visible: a crash
// mid-write must leave the previous snapshot (if any) intact and readable.
type Storage interface {
	// Exists reports whether this location already holds a snapshot.
	Exists() (bool, error)
	// CanCreate reports whether this location is empty and ready for Create.
	CanCreate() (bool, error)
	// VerifyCanLoad fails with ErrIncompatible if an existing location is
	// not in a format this Storage implementation can read.
	VerifyCanLoad() error
	// Create writes an initial snapshot of model tagged as segment #0. It
	// fails with ErrExists if the location is already populated.
	Create(model any) error
	// GetMostRecentSnapshot returns the latest complete snapshot decoded
	// into out (a non-nil pointer) and the segment the journal should
	// resume reading from. If no snapshot exists it returns
	// (false, NoSnapshotSegment, nil) and leaves out untouched.
	GetMostRecentSnapshot(out any) (bool, SegmentInfo, error)
	// WriteSnapshot durably and atomically writes model as a new snapshot
	// named name (empty or "auto" both mean an unnamed/automatic snapshot),
	// associated with segment.
	WriteSnapshot(model any, name string, segment SegmentInfo) error
	// Close releases any resources held by the storage backend.
	Close() error
}

// Factory constructs a Storage for the given location string, using s to
// encode and decode snapshot payloads.
type Factory func(location string, s serializer.Serializer) (Storage, error)
