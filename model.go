package origodb

// Model is the user-defined aggregate root: the single source of truth
// mutated only by Commands, only under the Engine's write lock. The engine
// treats it as opaque beyond the lifecycle hooks below and the requirement
// that it round-trip through the configured Serializer.
type Model any

// SnapshotRestorer is implemented by a Model that wants to run setup logic
// right after being installed from a loaded (or newly constructed) snapshot,
// before any journal entries are replayed.
type SnapshotRestorer interface {
	SnapshotRestored()
}

// JournalRestorer is implemented by a Model that wants to run setup logic
// after all journal entries up to the live tail have been replayed.
type JournalRestorer interface {
	JournalRestored()
}

// Authorizer decides whether a caller identity may execute a given
// operation class. The check runs before any lock is taken or clone is
// made, so a denial is cheap and leaves no side effects.
type Authorizer interface {
	Allows(op Operation, caller string) bool
}

// ModelAuthorizer lets a Model double as the Authorizer: if the live model
// implements this interface, the engine resolves authorization decisions
// against it instead of the configured default, so rules can depend on
// model state.
type ModelAuthorizer interface {
	Authorizer
}

// AllowAll is an Authorizer that permits every operation. It is the
// zero-configuration default.
type AllowAll struct{}

func (AllowAll) Allows(Operation, string) bool { return true }

// Command is a deterministic, serializable mutation of the Model.
//
// Prepare runs first, under the upgrade lock: it may read the model to
// validate the command but must not mutate it. Execute runs second, under
// the exclusive write lock, and performs the mutation; it must be total
// (non-failing) once Prepare has succeeded, modulo genuine runtime faults.
// Redo is called in place of Execute during journal replay, giving user code
// a hook to elide side effects (e.g. outbound notifications) that must not
// repeat non-deterministically on recovery.
type Command interface {
	Prepare(model Model) error
	Execute(model Model) (any, error)
	Redo(model Model) error
}

// Query is a read-only function over the Model. Queries are never journaled
// and never mutate the model.
type Query interface {
	Execute(model Model) (any, error)
}

// OperationKind distinguishes the two classes of operation the Authorizer
// is asked to decide on.
type OperationKind int

const (
	// OperationCommand identifies a Command execution.
	OperationCommand OperationKind = iota
	// OperationQuery identifies a Query execution.
	OperationQuery
)

func (k OperationKind) String() string {
	switch k {
	case OperationCommand:
		return "Command"
	case OperationQuery:
		return "Query"
	default:
		return "Unknown"
	}
}

// Operation identifies the operation class an Authorizer decides on: the
// broad kind (Command vs Query) plus the concrete Go type name of the
// Command/Query value, so policies can be as coarse or as fine-grained as
// the caller wants.
type Operation struct {
	Kind OperationKind
	Type string
}
