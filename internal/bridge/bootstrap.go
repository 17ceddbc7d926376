package bridge

import (
	"context"
	"fmt"
)

// bootstrapLegacy migrates bookkeeping from the numeric schema_version table
// used before migrations were named. Version n maps to the nth migration in
// declared order, so a database already at version n is seeded with the
// first n names and the engine picks up exactly where the old tracking left
// off. No-op for fresh databases and for databases already carrying
// schema_migrations.
func (a *Adapter) bootstrapLegacy(ctx context.Context) error {
	legacy, err := a.tableExists(ctx, "schema_version")
	if err != nil {
		return fmt.Errorf("check legacy table: %w", err)
	}
	if !legacy {
		return nil
	}

	// Any recorded name means the named bookkeeping is already live. An
	// empty schema_migrations table can exist on a legacy database (a status
	// command creates it), so table existence alone is not enough.
	recorded, err := a.tableExists(ctx, "schema_migrations")
	if err != nil {
		return fmt.Errorf("check schema_migrations: %w", err)
	}
	if recorded {
		rows, err := a.Dispatch(ctx, "SELECT COUNT(*) AS n FROM schema_migrations", nil, ShapeFirstRow)
		if err != nil {
			return fmt.Errorf("check schema_migrations: %w", err)
		}
		if len(rows) == 1 {
			n, err := intColumn(rows[0], "n")
			if err != nil {
				return fmt.Errorf("check schema_migrations: %w", err)
			}
			if n > 0 {
				return nil
			}
		}
	}

	rows, err := a.Dispatch(ctx, "SELECT COALESCE(MAX(version), 0) AS version FROM schema_version", nil, ShapeFirstRow)
	if err != nil {
		return fmt.Errorf("read legacy version: %w", err)
	}
	maxVersion := 0
	if len(rows) == 1 {
		v, err := intColumn(rows[0], "version")
		if err != nil {
			return fmt.Errorf("read legacy version: %w", err)
		}
		maxVersion = v
	}
	if maxVersion == 0 {
		return nil
	}
	if maxVersion > len(a.migrations) {
		return fmt.Errorf("legacy version %d exceeds the %d declared migrations", maxVersion, len(a.migrations))
	}

	if err := a.exec.Execute(ctx, createMigrationsTable, false); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range a.migrations[:maxVersion] {
		if _, err := a.Dispatch(ctx, "INSERT INTO schema_migrations (id) VALUES (?)", []any{m.Name}, ShapeNone); err != nil {
			return fmt.Errorf("seed migration %q: %w", m.Name, err)
		}
	}
	return nil
}

func (a *Adapter) tableExists(ctx context.Context, name string) (bool, error) {
	rows, err := a.Dispatch(ctx,
		"SELECT COUNT(*) AS n FROM sqlite_master WHERE type='table' AND name=?",
		[]any{name}, ShapeFirstRow)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	n, err := intColumn(rows[0], "n")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func intColumn(row Row, col string) (int, error) {
	switch v := row[col].(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("column %q: unexpected type %T", col, v)
	}
}
