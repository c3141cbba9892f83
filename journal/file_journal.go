package journal

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/anthrax3/OrigoDB/serializer"
	"github.com/anthrax3/OrigoDB/storage"
)

// segmentMeta is what FileJournal remembers about a segment once it has
// been scanned, whether or not it is still the live tail.
type segmentMeta struct {
	number int64
	first  int64 // sequence of the first entry, meaningless if count == 0
	count  int
	path   string
}

// FileJournal is the default CommandJournal: a directory of numbered
// segment files, recovered and appended to following the record framing in
// segment.go. It is grounded on the teacher's graft/wal.go, generalized from
// a single global log shared by the whole Raft group to a single-writer
// command log serving one Engine.
type FileJournal struct {
	dir          string
	serializer   serializer.Serializer
	segmentSize  int64
	memoryMapped bool

	mu       sync.Mutex
	sealed   []segmentMeta
	tail     *segment
	nextSeq  int64
	opened   bool
	closed   bool
}

// NewFileJournal returns a FileJournal that will operate out of opts.Dir
// once Open is called.
func NewFileJournal(opts Options) *FileJournal {
	size := opts.SegmentSize
	if size <= 0 {
		size = DefaultSegmentSize
	}
	return &FileJournal{
		dir:          opts.Dir,
		serializer:   opts.Serializer,
		segmentSize:  size,
		memoryMapped: opts.MemoryMapped,
	}
}

func (j *FileJournal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.opened {
		return nil
	}

	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return fmt.Errorf("journal: mkdir: %w", err)
	}

	numbers, paths, err := listSegmentPaths(j.dir)
	if err != nil {
		return fmt.Errorf("journal: list segments: %w", err)
	}

	if len(numbers) == 0 {
		if err := j.createSegmentFile(0, 0); err != nil {
			return err
		}
		j.opened = true
		return nil
	}

	var nextSeq int64
	for i, number := range numbers {
		path := paths[number]
		isTail := i == len(numbers)-1

		var header segmentHeader
		var entries []segmentEntryRef
		sealed, finalOffset, err := scanSegment(path, isTail,
			func(h segmentHeader) { header = h },
			func(offset int64, payload []byte) {
				entries = append(entries, segmentEntryRef{offset: offset, payload: payload})
			})
		if err != nil {
			return err
		}

		lastSeq := header.First - 1
		for _, ref := range entries {
			var e Entry
			if err := j.serializer.Deserialize(ref.payload, &e); err != nil {
				if isTail {
					// Treat an undecodable tail entry as a torn write: stop
					// before it rather than failing recovery outright.
					finalOffset = ref.offset
					break
				}
				return fmt.Errorf("%w: %s: decode entry: %v", ErrCorrupt, path, err)
			}
			lastSeq = e.Sequence
		}
		nextSeq = lastSeq + 1

		if !isTail {
			j.sealed = append(j.sealed, segmentMeta{number: number, first: header.First, count: len(entries), path: path})
			continue
		}

		if sealed {
			// Crashed after sealing this segment but before creating the
			// next one: finish the rotation now.
			j.sealed = append(j.sealed, segmentMeta{number: number, first: header.First, count: len(entries), path: path})
			if err := j.createSegmentFile(number+1, nextSeq); err != nil {
				return err
			}
		} else {
			if err := j.reopenTail(number, header.First, finalOffset, entries); err != nil {
				return err
			}
		}
	}

	j.nextSeq = nextSeq
	j.opened = true
	return nil
}

type segmentEntryRef struct {
	offset  int64
	payload []byte
}

// createSegmentFile writes a brand-new, empty segment (header record only)
// and installs it as the tail.
func (j *FileJournal) createSegmentFile(number int64, first int64) error {
	path := filepath.Join(j.dir, segmentFileName(number))

	var b backing
	var err error
	if j.memoryMapped {
		b, err = openMmapBacking(path, j.segmentSize)
	} else {
		b, err = openFileBacking(path)
	}
	if err != nil {
		return fmt.Errorf("journal: create segment %d: %w", number, err)
	}

	header := encodeSegmentHeader(segmentHeader{Magic: segmentMagic, Version: segmentVersion, Number: number, First: first})
	frame := encodeFrame(headerRecordType, header)
	if _, err := b.Write(frame); err != nil {
		b.Close()
		return fmt.Errorf("journal: write segment header: %w", err)
	}
	if err := b.Sync(); err != nil {
		b.Close()
		return fmt.Errorf("journal: sync segment header: %w", err)
	}

	j.tail = &segment{number: number, first: first, next: first, path: path, backing: b}
	return nil
}

// reopenTail truncates away any torn trailing write then reopens the
// segment's backing positioned at finalOffset, ready to keep appending.
func (j *FileJournal) reopenTail(number, first, finalOffset int64, entries []segmentEntryRef) error {
	path := filepath.Join(j.dir, segmentFileName(number))

	if err := os.Truncate(path, finalOffset); err != nil {
		return fmt.Errorf("journal: truncate torn tail: %w", err)
	}

	var b backing
	var err error
	if j.memoryMapped {
		b, err = openMmapBacking(path, j.segmentSize)
		if err == nil {
			b.(*mmapBacking).size = finalOffset
		}
	} else {
		b, err = openFileBacking(path)
	}
	if err != nil {
		return fmt.Errorf("journal: reopen tail segment %d: %w", number, err)
	}

	next := first
	if len(entries) > 0 {
		var last Entry
		if err := j.serializer.Deserialize(entries[len(entries)-1].payload, &last); err == nil {
			next = last.Sequence + 1
		}
	}

	j.tail = &segment{number: number, first: first, next: next, path: path, backing: b, entryCount: len(entries)}
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if j.tail == nil {
		return nil
	}
	if err := j.tail.backing.Sync(); err != nil {
		return fmt.Errorf("journal: sync on close: %w", err)
	}
	return j.tail.backing.Close()
}

func (j *FileJournal) Append(command any) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, ErrClosed
	}

	seq := j.nextSeq
	entry := Entry{Sequence: seq, Command: command}

	var buf bytes.Buffer
	if err := j.serializer.Write(entry, &buf); err != nil {
		return 0, fmt.Errorf("journal: encode entry: %w", err)
	}
	frame := encodeFrame(entryRecordType, buf.Bytes())

	if _, err := j.tail.backing.Write(frame); err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	if err := j.tail.backing.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync append: %w", err)
	}

	j.tail.next = seq + 1
	j.tail.entryCount++
	j.nextSeq = seq + 1
	return seq, nil
}

func (j *FileJournal) CreateNextSegment() (storage.SegmentInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return storage.SegmentInfo{}, ErrClosed
	}

	trailer := encodeFrame(trailerRecordType, encodeSegmentHeader(segmentHeader{Magic: segmentMagic, Version: segmentVersion, Number: j.tail.number}))
	if _, err := j.tail.backing.Write(trailer); err != nil {
		return storage.SegmentInfo{}, fmt.Errorf("journal: seal segment: %w", err)
	}
	if err := j.tail.backing.Sync(); err != nil {
		return storage.SegmentInfo{}, fmt.Errorf("journal: sync seal: %w", err)
	}
	if err := j.tail.backing.Close(); err != nil {
		return storage.SegmentInfo{}, fmt.Errorf("journal: close sealed segment: %w", err)
	}

	sealedNumber, sealedFirst := j.tail.number, j.tail.first
	j.sealed = append(j.sealed, segmentMeta{number: sealedNumber, first: sealedFirst, count: j.tail.entryCount, path: j.tail.path})

	if err := j.createSegmentFile(sealedNumber+1, j.nextSeq); err != nil {
		return storage.SegmentInfo{}, err
	}
	return storage.SegmentInfo{Number: j.tail.number}, nil
}

func (j *FileJournal) CurrentSegment() storage.SegmentInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return storage.SegmentInfo{Number: j.tail.number}
}

// GetEntriesFrom returns a Cursor over every entry from the requested
// segment through the live tail. Entries are read eagerly from disk at call
// time (the data set a single embedded engine journals between snapshots is
// bounded, so this trades strict laziness for a much simpler, obviously
// correct implementation) but are exposed one at a time through Cursor's
// Next, preserving the interface's forward-only streaming contract.
func (j *FileJournal) GetEntriesFrom(from storage.SegmentInfo) (Cursor, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil, ErrClosed
	}

	var paths []string
	for _, s := range j.sealed {
		if s.number >= from.Number {
			paths = append(paths, s.path)
		}
	}
	paths = append(paths, j.tail.path)

	var entries []Entry
	for _, path := range paths {
		segEntries, err := j.readEntriesFromFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, segEntries...)
	}

	return &sliceCursor{entries: entries}, nil
}

func (j *FileJournal) readEntriesFromFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	typ, payload, err := readFrame(r)
	if err != nil || typ != headerRecordType {
		return nil, fmt.Errorf("journal: %s: missing header record", path)
	}
	_ = payload

	var entries []Entry
	for {
		typ, payload, err := readFrame(r)
		if err != nil {
			break
		}
		switch typ {
		case entryRecordType:
			var e Entry
			if err := j.serializer.Deserialize(payload, &e); err != nil {
				return entries, nil
			}
			entries = append(entries, e)
		case trailerRecordType:
			return entries, nil
		default:
			// An mmap-backed tail segment's unwritten capacity decodes as a
			// stream of zeroed frames (type 0, matching no case above);
			// stop here exactly as scanSegment does rather than reading
			// through the rest of the preallocated region.
			return entries, nil
		}
	}
	return entries, nil
}

// sliceCursor is a Cursor over a precomputed, in-memory slice of entries.
type sliceCursor struct {
	entries []Entry
	pos     int
}

func (c *sliceCursor) Next() (Entry, bool, error) {
	if c.pos >= len(c.entries) {
		return Entry{}, false, nil
	}
	e := c.entries[c.pos]
	c.pos++
	return e, true, nil
}

func (c *sliceCursor) Close() error { return nil }
