package serializer

import (
	"io"
	"testing"

	"gotest.tools/v3/assert"
)

type point struct {
	X, Y int
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	s := New()

	data, err := s.Serialize(point{X: 1, Y: 2})
	assert.NilError(t, err)

	var out point
	assert.NilError(t, s.Deserialize(data, &out))
	assert.DeepEqual(t, out, point{X: 1, Y: 2})
}

func TestCloneValueType(t *testing.T) {
	s := New()

	orig := point{X: 3, Y: 4}
	cloned, err := s.Clone(orig)
	assert.NilError(t, err)
	assert.DeepEqual(t, cloned, orig)
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()

	orig := &point{X: 5, Y: 6}
	clonedAny, err := s.Clone(orig)
	assert.NilError(t, err)

	cloned := clonedAny.(*point)
	cloned.X = 999

	assert.Equal(t, orig.X, 5)
}

func TestWriteRead(t *testing.T) {
	s := New()

	var buf writeReadBuffer
	assert.NilError(t, s.Write(point{X: 7, Y: 8}, &buf))

	var out point
	assert.NilError(t, s.Read(&buf, &out))
	assert.DeepEqual(t, out, point{X: 7, Y: 8})
}

type writeReadBuffer struct {
	data []byte
	pos  int
}

func (b *writeReadBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *writeReadBuffer) Read(p []byte) (int, error) {
	n := copy(p, b.data[b.pos:])
	b.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}
