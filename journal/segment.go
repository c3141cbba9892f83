package journal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/edsrzf/mmap-go"

	"github.com/anthrax3/OrigoDB/storage"
)

type recordType byte

const (
	headerRecordType recordType = 1
	entryRecordType  recordType = 2
	trailerRecordType recordType = 3
)

const (
	segmentMagic   uint32 = 0x4f474442 // "OGDB"
	segmentVersion uint32 = 1
)

// frameHeaderSize is the fixed [type(1)][length(4)][crc32(4)] prefix before
// every record's payload.
const frameHeaderSize = 1 + 4 + 4

func segmentFileName(number int64) string {
	return fmt.Sprintf("segment-%020d.cmdlog", number)
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func crcOf(payload []byte) uint32 {
	return crc32.Checksum(payload, crcTable)
}

// encodeFrame lays out a single record as [type][length][crc32][payload].
func encodeFrame(typ recordType, payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = byte(typ)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[5:9], crcOf(payload))
	copy(frame[frameHeaderSize:], payload)
	return frame
}

// readFrame reads one record from r. It returns io.EOF when r is exhausted
// exactly at a frame boundary (a clean, complete segment), and
// io.ErrUnexpectedEOF when a frame starts but cannot be read in full (a torn
// write). A successfully read frame whose payload fails its checksum is
// reported via ErrCorrupt so callers can apply their own tail-vs-interior
// policy.
func readFrame(r io.Reader) (recordType, []byte, error) {
	var head [frameHeaderSize]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, io.ErrUnexpectedEOF
	}

	typ := recordType(head[0])
	length := binary.BigEndian.Uint32(head[1:5])
	wantCrc := binary.BigEndian.Uint32(head[5:9])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, io.ErrUnexpectedEOF
	}

	if crcOf(payload) != wantCrc {
		return 0, nil, ErrCorrupt
	}
	return typ, payload, nil
}

type segmentHeader struct {
	Magic   uint32
	Version uint32
	Number  int64
	First   int64 // sequence number of the first entry this segment may hold
}

func encodeSegmentHeader(h segmentHeader) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, h.Magic)
	binary.Write(&buf, binary.BigEndian, h.Version)
	binary.Write(&buf, binary.BigEndian, h.Number)
	binary.Write(&buf, binary.BigEndian, h.First)
	return buf.Bytes()
}

func decodeSegmentHeader(payload []byte) (segmentHeader, error) {
	var h segmentHeader
	r := bytes.NewReader(payload)
	if err := binary.Read(r, binary.BigEndian, &h.Magic); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Version); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.Number); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.First); err != nil {
		return h, err
	}
	if h.Magic != segmentMagic {
		return h, fmt.Errorf("journal: bad segment magic")
	}
	if h.Version != segmentVersion {
		return h, fmt.Errorf("journal: unsupported segment version %d", h.Version)
	}
	return h, nil
}

// backing abstracts the two storage modes a segment's live bytes can sit
// in: a plain append-only file, or an mmap'd region. It is write-only;
// recovery and Cursor reads open the segment file directly.
type backing interface {
	io.Writer
	Sync() error
	Close() error
}

type fileBacking struct {
	f    *os.File
	size int64
}

func openFileBacking(path string) (*fileBacking, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileBacking{f: f, size: info.Size()}, nil
}

func (b *fileBacking) Write(p []byte) (int, error) {
	n, err := b.f.WriteAt(p, b.size)
	b.size += int64(n)
	return n, err
}

func (b *fileBacking) Sync() error  { return b.f.Sync() }
func (b *fileBacking) Close() error { return b.f.Close() }

// mmapBacking pre-allocates a fixed-size file region and maps it, trading a
// larger up-front allocation for avoiding a write syscall per append,
// mirroring the teacher's own memory-mapped segment option.
type mmapBacking struct {
	f    *os.File
	m    mmap.MMap
	size int64 // logical (written) size; cap(m) is the mapped capacity
}

func openMmapBacking(path string, capacity int64) (*mmapBacking, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	logicalSize := info.Size()
	if info.Size() < capacity {
		if err := f.Truncate(capacity); err != nil {
			f.Close()
			return nil, err
		}
	}
	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mmapBacking{f: f, m: m, size: logicalSize}, nil
}

func (b *mmapBacking) Write(p []byte) (int, error) {
	if b.size+int64(len(p)) > int64(len(b.m)) {
		return 0, io.ErrShortWrite
	}
	n := copy(b.m[b.size:], p)
	b.size += int64(n)
	return n, nil
}

func (b *mmapBacking) Sync() error { return b.m.Flush() }

func (b *mmapBacking) Close() error {
	if err := b.m.Unmap(); err != nil {
		b.f.Close()
		return err
	}
	return b.f.Close()
}

// segment is one segment file: a header record, zero or more entry records,
// and - once sealed by rotation - a trailer record.
type segment struct {
	number     int64
	first      int64 // sequence of first entry, or next sequence if empty
	next       int64 // sequence the next appended entry will receive
	path       string
	backing    backing
	entryCount int
}

// scanSegment scans every frame in the file at path,
// invoking onEntry for entryRecordType frames. isTail controls the recovery
// policy applied when a frame cannot be read or fails its checksum: on the
// tail segment this is a torn write and the file is truncated to the last
// good offset; on any earlier, already-rotated segment it is unconditional
// interior corruption.
func scanSegment(path string, isTail bool, onHeader func(segmentHeader), onEntry func(offset int64, payload []byte)) (sealed bool, finalOffset int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return false, 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var offset int64

	typ, payload, err := readFrame(r)
	if err != nil {
		return false, 0, fmt.Errorf("journal: read segment header %s: %w", path, err)
	}
	if typ != headerRecordType {
		return false, 0, fmt.Errorf("journal: %s does not start with a header record", path)
	}
	header, err := decodeSegmentHeader(payload)
	if err != nil {
		return false, 0, fmt.Errorf("journal: %s: %w", path, err)
	}
	onHeader(header)
	offset += int64(frameHeaderSize + len(payload))

	for {
		typ, payload, err := readFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, offset, nil
			}
			if isTail {
				return false, offset, nil // torn tail: stop here, caller truncates to offset.
			}
			return false, offset, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}

		frameSize := int64(frameHeaderSize + len(payload))
		switch typ {
		case entryRecordType:
			onEntry(offset, payload)
			offset += frameSize
		case trailerRecordType:
			return true, offset + frameSize, nil
		default:
			if isTail {
				return false, offset, nil
			}
			return false, offset, fmt.Errorf("%w: %s: unexpected record type %d", ErrCorrupt, path, typ)
		}
	}
}

func listSegmentPaths(dir string) ([]int64, map[int64]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, map[int64]string{}, nil
		}
		return nil, nil, err
	}

	numbers := make([]int64, 0, len(entries))
	paths := make(map[int64]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var number int64
		if _, err := fmt.Sscanf(e.Name(), "segment-%020d.cmdlog", &number); err != nil {
			continue
		}
		numbers = append(numbers, number)
		paths[number] = filepath.Join(dir, e.Name())
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, paths, nil
}

// SegmentInfoOf converts a local segment number into the storage package's
// SegmentInfo value used to tie a snapshot to a journal position.
func SegmentInfoOf(number int64) storage.SegmentInfo { return storage.SegmentInfo{Number: number} }
