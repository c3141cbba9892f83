// Package journal implements the ordered, segmented, durable command log
// the Engine appends accepted commands to and replays on recovery. It is
// grounded on the teacher's own write-ahead log (graft/wal.go): a directory
// of numbered segment files, each framing records as a length-prefixed,
// CRC32-checksummed blob, with a distinguishable boundary between a torn
// trailing write (truncate and keep going) and interior corruption (abort).
package journal

import (
	"errors"

	"github.com/anthrax3/OrigoDB/serializer"
	"github.com/anthrax3/OrigoDB/storage"
)

// ErrCorrupt is returned by Open when an interior (non-tail) record fails
// its checksum or is otherwise malformed. Recovery cannot safely continue
// past this point because entries after it, if any, would be replayed out
// of their true position.
var ErrCorrupt = errors.New("journal: corrupt")

// ErrClosed is returned by any CommandJournal method once Close has
// completed.
var ErrClosed = errors.New("journal: closed")

// Entry is a single accepted command together with its position in the
// total order of acceptance.
type Entry struct {
	Sequence int64
	Command  any
}

// Cursor is a finite, single-pass, forward-only stream of Entry values
// produced by GetEntriesFrom. Next returns (entry, true, nil) for each
// element in order, then (Entry{}, false, nil) once exhausted. Callers must
// call Close when done, even after an error or early abandonment.
type Cursor interface {
	Next() (Entry, bool, error)
	Close() error
}

// CommandJournal is the durable, ordered command log. Appends occur
// strictly under the engine's write lock, so append order is acceptance
// order; sequence numbers are assigned in that same order and never reused.
type CommandJournal interface {
	// Open begins appending to the current (tail) segment, recovering it
	// from disk first. Open must be called before any other method.
	Open() error
	// Close flushes the current segment to disk and releases it. It does not
	// seal the segment with a trailer record; the next Open resumes
	// appending to it as the tail.
	Close() error
	// Append serializes and durably appends command, returning only once
	// the write is guaranteed recoverable, along with the sequence number
	// assigned to it.
	Append(command any) (sequence int64, err error)
	// GetEntriesFrom returns a Cursor over every entry from the given
	// segment through the current tail, in acceptance order.
	GetEntriesFrom(segment storage.SegmentInfo) (Cursor, error)
	// CreateNextSegment seals the current segment and starts a new, empty
	// one, returning the new segment's identity. The Engine calls it just
	// before writing a snapshot, and tags that snapshot with the returned
	// segment.
	CreateNextSegment() (storage.SegmentInfo, error)
	// CurrentSegment reports the segment currently being appended to.
	CurrentSegment() storage.SegmentInfo
}

// Options configures a FileJournal.
type Options struct {
	// Dir is the directory holding segment files. It is created if absent.
	Dir string
	// Serializer encodes/decodes each Entry.Command. Required.
	Serializer serializer.Serializer
	// SegmentSize is the mapped capacity of each MemoryMapped segment: once
	// a segment's records fill it, Append fails until CreateNextSegment
	// starts a new one. Plain file segments are not bounded by it.
	// Zero means DefaultSegmentSize.
	SegmentSize int64
	// MemoryMapped backs each segment with an mmap'd region instead of
	// plain file writes, trading a larger fixed up-front allocation for
	// avoiding a write syscall on every append.
	MemoryMapped bool
}

// DefaultSegmentSize is used when Options.SegmentSize is zero.
const DefaultSegmentSize = 64 * 1024 * 1024
