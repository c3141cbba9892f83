package origodb

import "fmt"

// ErrDisposed is returned by any Engine operation after Close has completed.
var ErrDisposed = fmt.Errorf("origodb: engine is disposed")

// ErrUnauthorized is returned when the configured Authorizer denies an operation.
var ErrUnauthorized = fmt.Errorf("origodb: unauthorized")

// ErrTimeout is returned when lock acquisition exceeds the configured LockTimeout.
var ErrTimeout = fmt.Errorf("origodb: lock acquisition timed out")

// ErrNoInitialSnapshot names the case of a location with no snapshot and no
// model constructor. No function in this package returns it: open requires
// an existing snapshot, and every factory takes or derives a constructor.
var ErrNoInitialSnapshot = fmt.Errorf("origodb: no snapshot found and no initial model constructor given")

// ErrJournalCorrupt is returned when recovery finds damage at a non-tail
// journal position.
var ErrJournalCorrupt = fmt.Errorf("origodb: journal is corrupt")

// ErrIncompatibleStorage is returned (wrapping the storage's own error) when
// storage fails its compatibility check while the engine opens.
var ErrIncompatibleStorage = fmt.Errorf("origodb: storage is incompatible")

// ErrStorageExists is returned by Create when the target location is already populated.
var ErrStorageExists = fmt.Errorf("origodb: storage already exists")

// ErrStorageAbsent is returned by Load when the target location has no storage to open.
var ErrStorageAbsent = fmt.Errorf("origodb: storage does not exist")

// ReplayFailedError wraps the error a journaled Command raised during
// recovery replay. It is always fatal to Engine construction.
type ReplayFailedError struct {
	Sequence int64
	Cause    error
}

func (e *ReplayFailedError) Error() string {
	return fmt.Sprintf("origodb: replay failed at sequence %d: %v", e.Sequence, e.Cause)
}

func (e *ReplayFailedError) Unwrap() error { return e.Cause }

// CommandFailedError reports that a Command did not take effect.
//
// When Refused is true the command's Prepare or Execute raised this error
// itself (a clean refusal): the model was never mutated, no rollback ran.
// When Refused is false, the command failed some other way. If Prepare
// raised the error, the model was not mutated and no rollback ran. If
// Execute raised it, or the result clone or journal append after a
// successful Execute failed, the engine rolled the live model back to its
// pre-command state by a fresh Restore before returning this error.
type CommandFailedError struct {
	Refused bool
	Cause   error
}

func (e *CommandFailedError) Error() string {
	if e.Refused {
		return fmt.Sprintf("origodb: command refused: %v", e.Cause)
	}
	return fmt.Sprintf("origodb: command failed, state rolled back: %v", e.Cause)
}

func (e *CommandFailedError) Unwrap() error { return e.Cause }

// Refuse wraps err as a clean, no-rollback command refusal. Command
// implementations call this from Prepare or Execute to signal that the
// operation should be rejected without being treated as a bug that requires
// restoring the model.
func Refuse(err error) error {
	if err == nil {
		return nil
	}
	return &CommandFailedError{Refused: true, Cause: err}
}

// IsRefusal reports whether err is a clean command refusal raised via Refuse.
func IsRefusal(err error) bool {
	cfe, ok := err.(*CommandFailedError)
	return ok && cfe.Refused
}
