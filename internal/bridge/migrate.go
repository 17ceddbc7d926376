package bridge

import (
	"context"
	"fmt"
)

// Migration is one named schema change unit: an ordered list of SQL
// statements applied at most once.
type Migration struct {
	Name       string
	Statements []string
}

// MigrationSet is an ordered collection of migrations. Slice order is the
// canonical apply order; the engine does not sort or reorder it. Names must
// be unique within a set.
type MigrationSet []Migration

// Names returns the migration names in declared order.
func (ms MigrationSet) Names() []string {
	names := make([]string, len(ms))
	for i, m := range ms {
		names[i] = m.Name
	}
	return names
}

func (ms MigrationSet) validate() error {
	seen := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if m.Name == "" {
			return fmt.Errorf("%w: migration with empty name", ErrInvalidMigrationSet)
		}
		if _, ok := seen[m.Name]; ok {
			return fmt.Errorf("%w: duplicate migration name %q", ErrInvalidMigrationSet, m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	id TEXT PRIMARY KEY,
	applied_at TEXT NOT NULL DEFAULT (datetime('now'))
)`

// ApplyMigrations applies every pending migration from the set bound at
// construction, in declared order, each inside its own transaction with a
// bookkeeping row committed alongside it. The first failure rolls back the
// current migration and aborts the whole run; already-committed migrations
// are never re-executed, so a re-run resumes from the first still-pending
// migration.
func (a *Adapter) ApplyMigrations(ctx context.Context) error {
	if len(a.migrations) == 0 {
		return ErrNoMigrations
	}
	if err := a.migrations.validate(); err != nil {
		return err
	}

	// Bookkeeping table creation is idempotent and deliberately outside any
	// transaction.
	if err := a.exec.Execute(ctx, createMigrationsTable, false); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := a.AppliedMigrations(ctx)
	if err != nil {
		return err
	}

	appliedSet := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		appliedSet[name] = struct{}{}
	}

	for _, m := range a.migrations {
		if _, ok := appliedSet[m.Name]; ok {
			continue
		}
		if err := a.applyOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// applyOne runs a single migration inside an explicit transaction. The
// transaction verbs travel through the instrumented dispatch path like any
// other command, so the classifier state stays consistent with what the
// connection actually did.
func (a *Adapter) applyOne(ctx context.Context, m Migration) error {
	if _, err := a.Dispatch(ctx, "BEGIN TRANSACTION", nil, ShapeNone); err != nil {
		return &MigrationError{Name: m.Name, Err: err}
	}

	fail := func(err error) error {
		// Roll back before surfacing the failure. The rollback itself going
		// wrong does not change what the caller needs to know.
		_, _ = a.Dispatch(ctx, "ROLLBACK", nil, ShapeNone)
		return &MigrationError{Name: m.Name, Err: err}
	}

	// Statements run sequentially; later statements may depend on earlier
	// ones (CREATE TABLE then CREATE INDEX).
	for _, stmt := range m.Statements {
		if _, err := a.Dispatch(ctx, stmt, nil, ShapeNone); err != nil {
			return fail(err)
		}
	}

	if _, err := a.Dispatch(ctx, "INSERT INTO schema_migrations (id) VALUES (?)", []any{m.Name}, ShapeNone); err != nil {
		return fail(err)
	}

	if _, err := a.Dispatch(ctx, "COMMIT", nil, ShapeNone); err != nil {
		return fail(err)
	}
	return nil
}

// AppliedMigrations returns the names recorded in the bookkeeping table,
// ordered by application time. The ordering is informational; pending-set
// computation keys on the names alone. The bookkeeping table is created if
// it does not exist yet.
func (a *Adapter) AppliedMigrations(ctx context.Context) ([]string, error) {
	if err := a.exec.Execute(ctx, createMigrationsTable, false); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := a.Dispatch(ctx, "SELECT id FROM schema_migrations ORDER BY applied_at, id", nil, ShapeRows)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		name, err := stringColumn(row, "id")
		if err != nil {
			return nil, fmt.Errorf("read applied migrations: %w", err)
		}
		names = append(names, name)
	}
	return names, nil
}

// PendingMigrations returns the names from the bound set that have not been
// applied yet, preserving declared order.
func (a *Adapter) PendingMigrations(ctx context.Context) ([]string, error) {
	applied, err := a.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		appliedSet[name] = struct{}{}
	}

	var pending []string
	for _, m := range a.migrations {
		if _, ok := appliedSet[m.Name]; !ok {
			pending = append(pending, m.Name)
		}
	}
	return pending, nil
}

func stringColumn(row Row, col string) (string, error) {
	switch v := row[col].(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("column %q: unexpected type %T", col, v)
	}
}
