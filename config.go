package origodb

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anthrax3/OrigoDB/journal"
	"github.com/anthrax3/OrigoDB/lock"
	"github.com/anthrax3/OrigoDB/serializer"
	"github.com/anthrax3/OrigoDB/storage"
)

// SnapshotBehavior controls when the Engine takes automatic snapshots.
type SnapshotBehavior int

const (
	// SnapshotNone takes no automatic snapshots; the caller drives via
	// Engine.CreateSnapshot.
	SnapshotNone SnapshotBehavior = iota
	// SnapshotAfterRestore asynchronously takes a snapshot under a
	// generated name right after the engine finishes opening.
	SnapshotAfterRestore
	// SnapshotOnShutdown takes a snapshot under a generated name during
	// Close, before the journal is sealed.
	SnapshotOnShutdown
)

func (b SnapshotBehavior) String() string {
	switch b {
	case SnapshotNone:
		return "None"
	case SnapshotAfterRestore:
		return "AfterRestore"
	case SnapshotOnShutdown:
		return "OnShutdown"
	default:
		return "Unknown"
	}
}

// StorageFactory builds the Storage collaborator for a given location.
type StorageFactory func(location string, s serializer.Serializer) (storage.Storage, error)

// JournalFactory builds the CommandJournal collaborator for a given
// location.
type JournalFactory func(location string, s serializer.Serializer) (journal.CommandJournal, error)

// LockFactory builds the Lock collaborator.
type LockFactory func() *lock.Strategy

// SerializerFactory builds the Serializer collaborator.
type SerializerFactory func() serializer.Serializer

// AuthorizerFactory builds the default Authorizer, given the freshly
// restored model (in case the factory wants to inspect it, though most
// implementations ignore the argument).
type AuthorizerFactory func(model Model) (Authorizer, error)

// Config is the immutable set of options an Engine is constructed with. The
// engine clones Config at construction time (per the source's own
// read-only-post-construction policy), so later mutation of the struct the
// caller passed in has no effect.
type Config struct {
	// Location identifies the backing store — a directory path for the
	// default FileStorage/FileJournal pair. Mandatory.
	Location string

	// CloneCommands, if set, clones each Command before Execute so
	// mutations a Command makes to its own fields during execution do not
	// leak into the copy that gets journaled.
	CloneCommands bool
	// CloneResults, if set, deep-clones every Command/Query return value
	// before handing it back to the caller, so the caller cannot mutate the
	// live model through a retained reference.
	CloneResults bool

	// SnapshotBehavior selects the automatic-snapshot policy. Defaults to
	// SnapshotNone.
	SnapshotBehavior SnapshotBehavior

	// LockTimeout bounds every lock acquisition the engine performs.
	// Defaults to DefaultLockTimeout if zero.
	LockTimeout time.Duration

	// Authorizer is the default Authorizer, used unless the live Model
	// implements ModelAuthorizer. Ignored if AuthorizerFactory is set.
	// Defaults to AllowAll.
	Authorizer Authorizer
	// AuthorizerFactory, if set, takes precedence over Authorizer.
	AuthorizerFactory AuthorizerFactory

	// SerializerFactory builds the Serializer. Defaults to serializer.New.
	SerializerFactory SerializerFactory
	// StorageFactory builds the Storage. Defaults to a FileStorage rooted
	// at Location.
	StorageFactory StorageFactory
	// JournalFactory builds the CommandJournal. Defaults to a FileJournal
	// rooted at Location.
	JournalFactory JournalFactory
	// LockFactory builds the Lock strategy. Defaults to lock.New.
	LockFactory LockFactory

	// Logger receives the engine's structured diagnostics. Defaults to a
	// no-op logger if nil, following the source's own LoggerOrNoop pattern.
	Logger *zap.Logger
}

// DefaultLockTimeout is used when Config.LockTimeout is zero.
const DefaultLockTimeout = 10 * time.Second

// Validate reports a descriptive error for any missing or contradictory
// option, following the field-by-field checks the source applies to its
// own Config.
func (c Config) Validate() error {
	if c.Location == "" {
		return fmt.Errorf("origodb: Location is required")
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("origodb: LockTimeout must not be negative: %v", c.LockTimeout)
	}
	return nil
}

// LoggerOrNoop returns c.Logger, or a no-op logger if none was configured.
func (c Config) LoggerOrNoop() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// withDefaults returns a copy of c with every unset optional field filled
// in, leaving the caller's original Config untouched.
func (c Config) withDefaults() Config {
	if c.LockTimeout == 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.Authorizer == nil {
		c.Authorizer = AllowAll{}
	}
	if c.SerializerFactory == nil {
		c.SerializerFactory = func() serializer.Serializer { return serializer.New() }
	}
	if c.LockFactory == nil {
		c.LockFactory = lock.New
	}
	if c.StorageFactory == nil {
		c.StorageFactory = func(location string, s serializer.Serializer) (storage.Storage, error) {
			return storage.NewFileStorage(location, s)
		}
	}
	if c.JournalFactory == nil {
		c.JournalFactory = func(location string, s serializer.Serializer) (journal.CommandJournal, error) {
			j := journal.NewFileJournal(journal.Options{Dir: location, Serializer: s})
			return j, nil
		}
	}
	return c
}

func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Location: %s, CloneCommands: %v, CloneResults: %v, SnapshotBehavior: %v, LockTimeout: %v}",
		c.Location, c.CloneCommands, c.CloneResults, c.SnapshotBehavior, c.LockTimeout)
}
