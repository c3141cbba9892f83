package origodb

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anthrax3/OrigoDB/journal"
	"github.com/anthrax3/OrigoDB/lock"
	"github.com/anthrax3/OrigoDB/serializer"
	"github.com/anthrax3/OrigoDB/storage"
)

// Engine is a running instance of the prevalent-system database: a Model
// kept entirely in memory, mutated only by Commands under the write lock,
// made durable by a command journal checkpointed with periodic snapshots.
// An Engine is safe for concurrent use by multiple goroutines.
type Engine struct {
	config     Config
	serializer serializer.Serializer
	storage    storage.Storage
	journal    journal.CommandJournal
	lk         *lock.Strategy
	logger     *zap.Logger
	newModel   func() Model

	authorizer Authorizer

	model    Model
	disposed atomic.Bool
}

// open runs the full Constructing state: build collaborators, restore the
// model, resolve the authorizer, open the journal, and (for
// SnapshotAfterRestore) kick off the first automatic snapshot.
func open(config Config, newModel func() Model) (*Engine, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ser := config.SerializerFactory()

	store, err := config.StorageFactory(config.Location, ser)
	if err != nil {
		return nil, fmt.Errorf("origodb: build storage: %w", err)
	}
	if err := store.VerifyCanLoad(); err != nil {
		if errors.Is(err, storage.ErrIncompatible) {
			return nil, fmt.Errorf("%w: %v", ErrIncompatibleStorage, err)
		}
		return nil, err
	}

	jrnl, err := config.JournalFactory(config.Location, ser)
	if err != nil {
		return nil, fmt.Errorf("origodb: build journal: %w", err)
	}
	if err := jrnl.Open(); err != nil {
		if isErrCorrupt(err) {
			return nil, ErrJournalCorrupt
		}
		return nil, fmt.Errorf("origodb: open journal: %w", err)
	}

	e := &Engine{
		config:     config,
		serializer: ser,
		storage:    store,
		journal:    jrnl,
		lk:         config.LockFactory(),
		logger:     config.LoggerOrNoop(),
		newModel:   newModel,
	}

	if err := e.restore(); err != nil {
		jrnl.Close()
		return nil, err
	}

	if err := e.resolveAuthorizer(); err != nil {
		jrnl.Close()
		return nil, err
	}

	if config.SnapshotBehavior == SnapshotAfterRestore {
		started := make(chan struct{})
		go func() {
			tok, err := e.lk.EnterRead(e.config.LockTimeout)
			close(started)
			if err != nil {
				e.logger.Sugar().Warnf("origodb: AfterRestore snapshot skipped: %v", err)
				return
			}
			defer e.lk.Exit(tok)
			if err := e.snapshotLocked(""); err != nil {
				e.logger.Sugar().Warnf("origodb: AfterRestore snapshot failed: %v", err)
			}
		}()
		<-started
	}

	return e, nil
}

func isErrCorrupt(err error) bool {
	return errors.Is(err, journal.ErrCorrupt)
}

// restore implements §4.6.1: load the latest snapshot (or construct a fresh
// model), install it, then replay every journaled command since.
func (e *Engine) restore() error {
	template := e.newModel()
	found, segment, err := e.storage.GetMostRecentSnapshot(template)
	if err != nil {
		return fmt.Errorf("origodb: load snapshot: %w", err)
	}

	var model Model
	if found {
		model = template
	} else {
		model = e.newModel()
	}

	e.model = model
	if r, ok := model.(SnapshotRestorer); ok {
		r.SnapshotRestored()
	}

	cursor, err := e.journal.GetEntriesFrom(segment)
	if err != nil {
		return fmt.Errorf("origodb: read journal: %w", err)
	}
	defer cursor.Close()

	for {
		entry, ok, err := cursor.Next()
		if err != nil {
			return fmt.Errorf("origodb: read journal: %w", err)
		}
		if !ok {
			break
		}
		command, ok := entry.Command.(Command)
		if !ok {
			return &ReplayFailedError{Sequence: entry.Sequence, Cause: fmt.Errorf("journaled value is not a Command: %T", entry.Command)}
		}
		if err := command.Redo(e.model); err != nil {
			return &ReplayFailedError{Sequence: entry.Sequence, Cause: err}
		}
	}

	if r, ok := e.model.(JournalRestorer); ok {
		r.JournalRestored()
	}
	return nil
}

// resolveAuthorizer picks e.authorizer against the current e.model: the
// model itself if it implements ModelAuthorizer, else the configured
// AuthorizerFactory's product, else the static Config.Authorizer. Must be
// re-run every time e.model is replaced by a fresh instance (restore), not
// just once at construction, since a ModelAuthorizer's decisions are
// resolved against whichever model instance e.authorizer currently points
// at — if that instance is a prior, discarded model, authorization silently
// stops reflecting any command applied since.
func (e *Engine) resolveAuthorizer() error {
	if ma, ok := e.model.(ModelAuthorizer); ok {
		e.authorizer = ma
		return nil
	}
	if e.config.AuthorizerFactory != nil {
		a, err := e.config.AuthorizerFactory(e.model)
		if err != nil {
			return fmt.Errorf("origodb: build authorizer: %w", err)
		}
		e.authorizer = a
		return nil
	}
	e.authorizer = e.config.Authorizer
	return nil
}

// rollbackAndFail discards the live model and rebuilds it from the last
// snapshot plus journal replay, re-resolving the authorizer against the
// rebuilt model, then wraps cause as a non-refusal CommandFailedError. Every
// "any other error" branch of ExecuteCommand after Execute has started
// mutating the model — a failing Execute itself, a failed result clone, or a
// failed journal append — routes through here so a caller never observes a
// mutation belonging to a command reported as failed, and never authorizes
// against the discarded pre-rollback model instance.
func (e *Engine) rollbackAndFail(cause error) error {
	if restoreErr := e.restore(); restoreErr != nil {
		e.logger.Sugar().Errorf("origodb: rollback restore failed: %v", restoreErr)
		return &CommandFailedError{Refused: false, Cause: cause}
	}
	if err := e.resolveAuthorizer(); err != nil {
		e.logger.Sugar().Errorf("origodb: rollback authorizer refresh failed: %v", err)
	}
	return &CommandFailedError{Refused: false, Cause: cause}
}

// operationFor derives the Operation an Authorizer decides on from a
// Command or Query value's concrete type.
func operationFor(kind OperationKind, v any) Operation {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return Operation{Kind: kind, Type: t.Name()}
}

// ExecuteQuery runs a read-only Query against the model, per §4.6.2.
func (e *Engine) ExecuteQuery(query Query, caller string) (any, error) {
	if e.disposed.Load() {
		return nil, ErrDisposed
	}
	if !e.authorizer.Allows(operationFor(OperationQuery, query), caller) {
		return nil, ErrUnauthorized
	}

	tok, err := e.lk.EnterRead(e.config.LockTimeout)
	if err != nil {
		if e.disposed.Load() {
			return nil, ErrDisposed
		}
		return nil, ErrTimeout
	}
	defer e.lk.Exit(tok)

	result, err := query.Execute(e.model)
	if err != nil {
		return nil, err
	}
	if e.config.CloneResults && result != nil {
		result, err = e.serializer.Clone(result)
		if err != nil {
			return nil, fmt.Errorf("origodb: clone query result: %w", err)
		}
	}
	return result, nil
}

// ExecuteCommand runs a mutating Command against the model, per §4.6.3.
func (e *Engine) ExecuteCommand(command Command, caller string) (any, error) {
	if e.disposed.Load() {
		return nil, ErrDisposed
	}
	if !e.authorizer.Allows(operationFor(OperationCommand, command), caller) {
		return nil, ErrUnauthorized
	}

	originalForJournal := command
	if e.config.CloneCommands {
		cloned, err := e.serializer.Clone(command)
		if err != nil {
			return nil, fmt.Errorf("origodb: clone command: %w", err)
		}
		command = cloned.(Command)
	}

	tok, err := e.lk.EnterUpgrade(e.config.LockTimeout)
	if err != nil {
		if e.disposed.Load() {
			return nil, ErrDisposed
		}
		return nil, ErrTimeout
	}
	defer e.lk.Exit(tok)

	if err := command.Prepare(e.model); err != nil {
		if IsRefusal(err) {
			return nil, err
		}
		// Prepare runs under the upgrade lock, compatible with readers, and
		// must not mutate the model (see Command's doc comment), so an
		// engine-detected fault here needs no rollback — only the correct
		// Refused:false labeling so IsRefusal doesn't mistake a bug for an
		// intentional refusal.
		return nil, &CommandFailedError{Refused: false, Cause: err}
	}

	if err := e.lk.Upgrade(tok, e.config.LockTimeout); err != nil {
		if e.disposed.Load() {
			return nil, ErrDisposed
		}
		return nil, ErrTimeout
	}

	result, err := command.Execute(e.model)
	if err != nil {
		if IsRefusal(err) {
			return nil, err
		}
		return nil, e.rollbackAndFail(err)
	}

	if e.config.CloneResults && result != nil {
		result, err = e.serializer.Clone(result)
		if err != nil {
			return nil, e.rollbackAndFail(fmt.Errorf("origodb: clone command result: %w", err))
		}
	}

	if _, err := e.journal.Append(originalForJournal); err != nil {
		return nil, e.rollbackAndFail(fmt.Errorf("origodb: append journal: %w", err))
	}

	return result, nil
}

// CreateSnapshot rotates the journal to a fresh segment and then writes a
// snapshot of the live model tagged with that new, still-empty segment, so
// the next accepted command lands in the segment replay resumes from. The
// rotation happens before the snapshot write, not after it: a crash between
// the two leaves the previous snapshot pointing at the sealed segment, which
// still replays in full. An empty name is replaced
// with a generated UUID. Snapshots may run concurrently with queries but
// block commands, since both hold only the read lock's reader slot.
func (e *Engine) CreateSnapshot(name string) error {
	if e.disposed.Load() {
		return ErrDisposed
	}

	tok, err := e.lk.EnterRead(e.config.LockTimeout)
	if err != nil {
		if e.disposed.Load() {
			return ErrDisposed
		}
		return ErrTimeout
	}
	defer e.lk.Exit(tok)

	return e.snapshotLocked(name)
}

// snapshotLocked performs the actual snapshot write; callers must already
// hold at least a read-lock token. An empty name is replaced with a fresh
// UUIDv7 so automatic snapshots stay individually addressable.
func (e *Engine) snapshotLocked(name string) error {
	if name == "" {
		name = uuid.Must(uuid.NewV7()).String()
	}
	newSegment, err := e.journal.CreateNextSegment()
	if err != nil {
		return fmt.Errorf("origodb: rotate journal: %w", err)
	}
	if err := e.storage.WriteSnapshot(e.model, name, newSegment); err != nil {
		return fmt.Errorf("origodb: write snapshot: %w", err)
	}
	return nil
}

// Close seals the engine. If SnapshotBehavior is SnapshotOnShutdown, a final
// snapshot is taken first. Close is idempotent; every operation after it
// completes fails with ErrDisposed.
func (e *Engine) Close() error {
	if !e.disposed.CompareAndSwap(false, true) {
		return nil
	}

	if e.config.SnapshotBehavior == SnapshotOnShutdown {
		tok, err := e.lk.EnterUpgrade(e.config.LockTimeout)
		if err != nil {
			e.logger.Sugar().Warnf("origodb: shutdown snapshot skipped: %v", err)
		} else {
			if err := e.snapshotLocked(""); err != nil {
				e.logger.Sugar().Errorf("origodb: shutdown snapshot failed: %v", err)
			}
			if err := e.lk.Upgrade(tok, e.config.LockTimeout); err != nil {
				e.logger.Sugar().Warnf("origodb: shutdown could not reach exclusive access: %v", err)
			}
			e.lk.Exit(tok)
		}
	}

	return e.journal.Close()
}
