package storage

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/anthrax3/OrigoDB/serializer"
)

// Badger key scheme, mirroring the flat string-prefixed keys the teacher
// uses for its own badger-backed persistence: a handful of fixed singleton
// keys since a snapshot head never needs range scans or secondary indexes.
const (
	snapshotMetaKey = "snapshot:meta"
	snapshotDataKey = "snapshot:data"
)

// snapshotMeta is the gob-encoded value stored at snapshotMetaKey.
type snapshotMeta struct {
	Name    string
	Segment SegmentInfo
}

// BadgerStorage is a Storage backed by an embedded badger key-value store,
// an alternative to FileStorage for callers who want their snapshot head
// and any future auxiliary indexes living in the same transactional store.
type BadgerStorage struct {
	db         *badger.DB
	serializer serializer.Serializer
}

// OpenBadgerStorage opens (creating if absent) a badger database at dir.
// SyncWrites is enabled so WriteSnapshot returns only once durable, matching
// the teacher's own opts.SyncWrites = true choice for its persisted state.
func OpenBadgerStorage(dir string, s serializer.Serializer) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger: %w", err)
	}
	return &BadgerStorage{db: db, serializer: s}, nil
}

func (bs *BadgerStorage) Exists() (bool, error) {
	exists := false
	err := bs.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(snapshotMetaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage: check snapshot: %w", err)
	}
	return exists, nil
}

func (bs *BadgerStorage) CanCreate() (bool, error) {
	exists, err := bs.Exists()
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (bs *BadgerStorage) VerifyCanLoad() error {
	exists, err := bs.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return ErrAbsent
	}
	return bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotMetaKey))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIncompatible, err)
		}
		return item.Value(func(val []byte) error {
			var m snapshotMeta
			if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&m); err != nil {
				return fmt.Errorf("%w: %v", ErrIncompatible, err)
			}
			return nil
		})
	})
}

func (bs *BadgerStorage) Create(model any) error {
	canCreate, err := bs.CanCreate()
	if err != nil {
		return err
	}
	if !canCreate {
		return ErrExists
	}
	return bs.WriteSnapshot(model, "auto", NoSnapshotSegment)
}

func (bs *BadgerStorage) GetMostRecentSnapshot(out any) (bool, SegmentInfo, error) {
	exists, err := bs.Exists()
	if err != nil {
		return false, NoSnapshotSegment, err
	}
	if !exists {
		return false, NoSnapshotSegment, nil
	}

	var meta snapshotMeta
	var data []byte
	err = bs.db.View(func(txn *badger.Txn) error {
		metaItem, err := txn.Get([]byte(snapshotMetaKey))
		if err != nil {
			return err
		}
		if err := metaItem.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&meta)
		}); err != nil {
			return err
		}

		dataItem, err := txn.Get([]byte(snapshotDataKey))
		if err != nil {
			return err
		}
		return dataItem.Value(func(val []byte) error {
			data = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return false, NoSnapshotSegment, fmt.Errorf("storage: read snapshot: %w", err)
	}

	if err := bs.serializer.Deserialize(data, out); err != nil {
		return false, NoSnapshotSegment, fmt.Errorf("storage: decode snapshot model: %w", err)
	}
	return true, meta.Segment, nil
}

func (bs *BadgerStorage) WriteSnapshot(model any, name string, segment SegmentInfo) error {
	if name == "" {
		name = "auto"
	}

	data, err := bs.serializer.Serialize(model)
	if err != nil {
		return fmt.Errorf("storage: encode snapshot model: %w", err)
	}

	var metaBuf bytes.Buffer
	if err := gob.NewEncoder(&metaBuf).Encode(snapshotMeta{Name: name, Segment: segment}); err != nil {
		return fmt.Errorf("storage: encode snapshot metadata: %w", err)
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(snapshotDataKey), data); err != nil {
			return err
		}
		return txn.Set([]byte(snapshotMetaKey), metaBuf.Bytes())
	})
}

func (bs *BadgerStorage) Close() error {
	return bs.db.Close()
}
