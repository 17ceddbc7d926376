package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMigrations is returned by ApplyMigrations when the adapter was
	// constructed without a migration set. Callers that have no migrations
	// must not invoke the migration engine.
	ErrNoMigrations = errors.New("relaydb: no migrations configured")

	// ErrInvalidMigrationSet is returned when the migration set violates its
	// invariants, e.g. two migrations share a name.
	ErrInvalidMigrationSet = errors.New("relaydb: invalid migration set")

	// ErrUnknownShape is returned by Dispatch for a result shape it does not
	// recognize.
	ErrUnknownShape = errors.New("relaydb: unknown result shape")
)

// MigrationError reports a statement failure inside a named migration. The
// migration's transaction has been rolled back and no later pending
// migrations were attempted.
type MigrationError struct {
	Name string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %q: %v", e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// ExecutionError reports a non-migration statement that failed against
// storage. SQL holds the statement text as dispatched.
type ExecutionError struct {
	SQL string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %q: %v", e.SQL, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
