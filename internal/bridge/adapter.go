// Package bridge multiplexes query-builder SQL onto a storage engine that is
// reachable only through an asynchronous statement-executor boundary. It
// contributes the two protocols that boundary needs: an ordered, named,
// exactly-once migration engine with durable bookkeeping, and a
// transaction-state classifier that decides per command whether the executor
// must wrap it in an implicit database-native transaction.
package bridge

import (
	"context"
	"fmt"
)

// Adapter owns one logical connection to the storage engine. All operations
// on an adapter are expected to be serialized by the caller; the adapter
// provides no internal locking and performs no reordering or batching of the
// statements it dispatches.
type Adapter struct {
	exec       Executor
	migrations MigrationSet
	tx         *TxState
	ready      *Ready
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithMigrations binds the migration set applied by ApplyMigrations. The set
// is immutable for the adapter's lifetime.
func WithMigrations(ms MigrationSet) Option {
	return func(a *Adapter) { a.migrations = ms }
}

// WithWrapFirst sets the initial value of the transaction-state flag. The
// default is true: the first statement is assumed to need an implicit wrap.
func WithWrapFirst(wrap bool) Option {
	return func(a *Adapter) { a.tx = NewTxState(wrap) }
}

// New creates an Adapter over the given executor.
func New(exec Executor, opts ...Option) *Adapter {
	a := &Adapter{
		exec:  exec,
		tx:    NewTxState(true),
		ready: newReady(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ready exposes the adapter's availability signal. It flips to true exactly
// once, after Start has finished applying migrations.
func (a *Adapter) Ready() *Ready { return a.ready }

// Migrations returns the migration set bound at construction.
func (a *Adapter) Migrations() MigrationSet { return a.migrations }

// Dispatch is the single entry point the query-builder proxy calls. Every
// command passes through the transaction-state classifier; commands executed
// for effect (ShapeNone) carry the resulting wrap flag to the executor.
// ShapeFirstRow returns at most one row; ShapeNone returns nil rows. An
// unrecognized shape fails with ErrUnknownShape.
func (a *Adapter) Dispatch(ctx context.Context, sqlText string, params []any, shape ResultShape) ([]Row, error) {
	kind := Classify(sqlText)
	wrap := a.tx.Before(kind)

	switch shape {
	case ShapeRows, ShapeFirstRow:
		rows, err := a.exec.Query(ctx, sqlText, params)
		if err != nil {
			return nil, err
		}
		a.tx.After(kind)
		if shape == ShapeFirstRow && len(rows) > 1 {
			rows = rows[:1]
		}
		return rows, nil

	case ShapeNone:
		if _, err := a.exec.Run(ctx, sqlText, params, wrap); err != nil {
			return nil, err
		}
		a.tx.After(kind)
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownShape, shape)
	}
}

// Run executes a statement for effect through the classifier and returns the
// executor's receipt.
func (a *Adapter) Run(ctx context.Context, sqlText string, params []any) (Result, error) {
	kind := Classify(sqlText)
	wrap := a.tx.Before(kind)
	res, err := a.exec.Run(ctx, sqlText, params, wrap)
	if err != nil {
		return Result{}, err
	}
	a.tx.After(kind)
	return res, nil
}

// Start brings the adapter to its ready state: legacy bookkeeping is
// bootstrapped, pending migrations are applied, and the availability signal
// fires. A migration failure is fatal and the signal never fires. Adapters
// constructed without migrations become ready immediately.
func (a *Adapter) Start(ctx context.Context) error {
	if len(a.migrations) > 0 {
		if err := a.bootstrapLegacy(ctx); err != nil {
			return fmt.Errorf("bootstrap legacy bookkeeping: %w", err)
		}
		if err := a.ApplyMigrations(ctx); err != nil {
			return err
		}
	}
	a.ready.Commit()
	return nil
}
