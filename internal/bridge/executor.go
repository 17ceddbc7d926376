package bridge

import "context"

// Row is a single result row keyed by column name.
type Row map[string]any

// Result is the opaque receipt for a statement that returns no rows.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Executor performs actual SQL execution against the storage engine. It is
// the external collaborator behind the adapter: a local SQLite handle, a
// device bridge, or anything else that speaks these three calls.
//
// Run and Execute must special-case the literal transaction verbs
// (BEGIN/COMMIT/ROLLBACK) by invoking dedicated transaction-control
// operations on the connection rather than passing the text through, because
// the underlying connection does not accept them as ordinary statement text.
type Executor interface {
	// Query executes a read statement and returns its rows. No transaction
	// semantics are attached to the read path.
	Query(ctx context.Context, sqlText string, params []any) ([]Row, error)

	// Run executes a parameterized statement. When wrapInTransaction is true
	// and no explicit transaction is open, the statement runs inside its own
	// implicit transaction.
	Run(ctx context.Context, sqlText string, params []any, wrapInTransaction bool) (Result, error)

	// Execute runs a statement without bound parameters, e.g. DDL.
	Execute(ctx context.Context, sqlText string, wrapInTransaction bool) error
}

// ResultShape selects how Dispatch shapes the rows it returns.
type ResultShape int

const (
	// ShapeRows returns every row the statement produced.
	ShapeRows ResultShape = iota
	// ShapeFirstRow returns at most the first row.
	ShapeFirstRow
	// ShapeNone discards rows; the statement is executed for effect.
	ShapeNone
)
