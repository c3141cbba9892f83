// Package serializer provides the deep-clone and byte encode/decode
// collaborator the Engine uses for snapshotting, defensive cloning, and
// journal entry framing. The default implementation is a gob round-trip,
// following how the teacher's infra/server and kvstore packages encode
// Commands and Model snapshots with encoding/gob rather than hand-rolled
// byte layouts.
package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"reflect"
)

// Serializer is deterministic and total over every Model/Command/Query/
// result value the caller supplies. Clone, Serialize, and Deserialize are
// convenience wrappers over Write/Read.
type Serializer interface {
	// Clone returns a deep, independent copy of v.
	Clone(v any) (any, error)
	// Serialize encodes v to bytes.
	Serialize(v any) ([]byte, error)
	// Deserialize decodes bytes produced by Serialize into out, which must
	// be a non-nil pointer.
	Deserialize(data []byte, out any) error
	// Write encodes v directly to sink.
	Write(v any, sink io.Writer) error
	// Read decodes a value from source into out, which must be a non-nil pointer.
	Read(source io.Reader, out any) error
}

// Gob is the default Serializer, a deep-clone-and-encode collaborator built
// on encoding/gob, the same codec the teacher uses for Command and Model
// snapshot payloads (infra/server/server.go's serializeCommand,
// kvstore/service/kvstore.go's MaybeSnapshot/Restore).
//
// Concrete types that will flow through Gob — every Command implementation,
// and any interface-typed field inside a Model — must be registered with
// gob.Register before first use, exactly as kvstore/service/service.go does
// with gob.Register(KvCommand{}).
type Gob struct{}

// New returns the default gob-based Serializer.
func New() Serializer {
	return Gob{}
}

func (Gob) Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := (Gob{}).Write(v, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (Gob) Deserialize(data []byte, out any) error {
	return Gob{}.Read(bytes.NewReader(data), out)
}

func (Gob) Write(v any, sink io.Writer) error {
	if err := gob.NewEncoder(sink).Encode(v); err != nil {
		return fmt.Errorf("serializer: encode: %w", err)
	}
	return nil
}

func (Gob) Read(source io.Reader, out any) error {
	if err := gob.NewDecoder(source).Decode(out); err != nil {
		return fmt.Errorf("serializer: decode: %w", err)
	}
	return nil
}

// Clone deep-copies v by encoding it and decoding into a new value of the
// same concrete type, the source's own default cloning strategy (§9 of the
// design notes: "deep-clone via serialization is the source's default").
func (g Gob) Clone(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	data, err := g.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("serializer: clone: %w", err)
	}

	out := newLike(v)
	if err := g.Deserialize(data, out); err != nil {
		return nil, fmt.Errorf("serializer: clone: %w", err)
	}
	return derefIfPointerWasAdded(v, out), nil
}

// Register makes a concrete type known to the underlying gob codec, a thin
// wrapper so callers don't need to import encoding/gob themselves.
func Register(value any) {
	gob.Register(value)
}

// newLike returns a freshly allocated, gob-decode-ready target for v:
// a pointer to v's type if v is already a value type, or a new pointer of
// v's own pointer type if v is already a pointer.
func newLike(v any) any {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return reflect.New(t).Interface()
}

// derefIfPointerWasAdded undoes the pointer newLike added for a value-typed
// original, so Clone's return type always matches the type passed in.
func derefIfPointerWasAdded(original, out any) any {
	if reflect.TypeOf(original).Kind() == reflect.Pointer {
		return out
	}
	return reflect.ValueOf(out).Elem().Interface()
}
