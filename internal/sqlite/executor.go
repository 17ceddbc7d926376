// Package sqlite implements the bridge executor on a local SQLite file via
// database/sql. It is the storage engine used by the CLI and by tests; on a
// device the same interface is satisfied by the platform bridge instead.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/joestump/relaydb/internal/bridge"
)

// Executor holds one SQLite connection and at most one open transaction.
// Like the adapter above it, it expects the caller to serialize operations.
type Executor struct {
	conn *sql.DB
	tx   *sql.Tx
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open creates an executor over the SQLite database at path, creating the
// file if needed.
func Open(path string) (*Executor, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &Executor{conn: conn}, nil
}

// Close rolls back any open transaction and closes the connection.
func (e *Executor) Close() error {
	if e.tx != nil {
		_ = e.tx.Rollback()
		e.tx = nil
	}
	return e.conn.Close()
}

// Conn returns the underlying *sql.DB for use by other packages if needed.
func (e *Executor) Conn() *sql.DB {
	return e.conn
}

// InTransaction reports whether an explicit transaction is open.
func (e *Executor) InTransaction() bool {
	return e.tx != nil
}

func (e *Executor) querier() querier {
	if e.tx != nil {
		return e.tx
	}
	return e.conn
}

// Query executes a read statement. Reads issued while an explicit
// transaction is open see that transaction's uncommitted state.
func (e *Executor) Query(ctx context.Context, sqlText string, params []any) ([]bridge.Row, error) {
	rows, err := e.querier().QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, &bridge.ExecutionError{SQL: sqlText, Err: err}
	}

	var out []bridge.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &bridge.ExecutionError{SQL: sqlText, Err: err}
		}

		row := make(bridge.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	return out, nil
}

// Run executes a statement for effect. The literal transaction verbs map to
// connection-level transaction control rather than passing through as text,
// since SQLite via database/sql exposes them as distinct calls.
func (e *Executor) Run(ctx context.Context, sqlText string, params []any, wrapInTransaction bool) (bridge.Result, error) {
	switch bridge.Classify(sqlText) {
	case bridge.KindBegin:
		return bridge.Result{}, e.begin(ctx, sqlText)
	case bridge.KindCommitOrRollback:
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(sqlText)), "rollback") {
			return bridge.Result{}, e.rollback(sqlText)
		}
		return bridge.Result{}, e.commit(sqlText)
	}

	if e.tx != nil {
		// Inside an explicit transaction the wrap flag is moot; the
		// statement joins it.
		res, err := e.tx.ExecContext(ctx, sqlText, params...)
		if err != nil {
			return bridge.Result{}, &bridge.ExecutionError{SQL: sqlText, Err: err}
		}
		return receipt(res), nil
	}

	if !wrapInTransaction {
		res, err := e.conn.ExecContext(ctx, sqlText, params...)
		if err != nil {
			return bridge.Result{}, &bridge.ExecutionError{SQL: sqlText, Err: err}
		}
		return receipt(res), nil
	}

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return bridge.Result{}, &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	res, err := tx.ExecContext(ctx, sqlText, params...)
	if err != nil {
		_ = tx.Rollback()
		return bridge.Result{}, &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return bridge.Result{}, &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	return receipt(res), nil
}

// Execute runs a statement without bound parameters.
func (e *Executor) Execute(ctx context.Context, sqlText string, wrapInTransaction bool) error {
	_, err := e.Run(ctx, sqlText, nil, wrapInTransaction)
	return err
}

// receipt converts a driver result into the boundary's opaque receipt.
// SQLite supports both counters; a counter error would mean a broken driver
// and is not surfaced separately.
func receipt(res sql.Result) bridge.Result {
	out := bridge.Result{}
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out
}

func (e *Executor) begin(ctx context.Context, sqlText string) error {
	if e.tx != nil {
		return &bridge.ExecutionError{SQL: sqlText, Err: errors.New("transaction already open")}
	}
	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	e.tx = tx
	return nil
}

func (e *Executor) commit(sqlText string) error {
	if e.tx == nil {
		return &bridge.ExecutionError{SQL: sqlText, Err: errors.New("no open transaction")}
	}
	err := e.tx.Commit()
	e.tx = nil
	if err != nil {
		return &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	return nil
}

func (e *Executor) rollback(sqlText string) error {
	if e.tx == nil {
		return &bridge.ExecutionError{SQL: sqlText, Err: errors.New("no open transaction")}
	}
	err := e.tx.Rollback()
	e.tx = nil
	if err != nil {
		return &bridge.ExecutionError{SQL: sqlText, Err: err}
	}
	return nil
}
