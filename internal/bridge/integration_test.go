package bridge_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/joestump/relaydb/internal/bridge"
	"github.com/joestump/relaydb/internal/sqlite"
)

func openAdapterAt(t *testing.T, path string, ms bridge.MigrationSet) *bridge.Adapter {
	t.Helper()
	exec, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { exec.Close() })
	return bridge.New(exec, bridge.WithMigrations(ms))
}

func openTestAdapter(t *testing.T, ms bridge.MigrationSet) *bridge.Adapter {
	t.Helper()
	return openAdapterAt(t, filepath.Join(t.TempDir(), "test.db"), ms)
}

func tableColumns(t *testing.T, a *bridge.Adapter, table string) []string {
	t.Helper()
	rows, err := a.Dispatch(context.Background(), "PRAGMA table_info("+table+")", nil, bridge.ShapeRows)
	if err != nil {
		t.Fatalf("table_info %s: %v", table, err)
	}
	var cols []string
	for _, row := range rows {
		cols = append(cols, row["name"].(string))
	}
	return cols
}

func tableExists(t *testing.T, a *bridge.Adapter, table string) bool {
	t.Helper()
	rows, err := a.Dispatch(context.Background(),
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		[]any{table}, bridge.ShapeRows)
	if err != nil {
		t.Fatalf("sqlite_master %s: %v", table, err)
	}
	return len(rows) == 1
}

func TestApplyMigrationsScenario(t *testing.T) {
	a := openTestAdapter(t, bridge.MigrationSet{
		{Name: "v1", Statements: []string{"CREATE TABLE t(id TEXT)"}},
		{Name: "v2", Statements: []string{"ALTER TABLE t ADD COLUMN name TEXT"}},
	})

	if err := a.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	applied, err := a.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 2 || applied[0] != "v1" || applied[1] != "v2" {
		t.Fatalf("expected [v1 v2], got %v", applied)
	}

	cols := tableColumns(t, a, "t")
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "name" {
		t.Fatalf("expected columns [id name], got %v", cols)
	}
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	ms := bridge.MigrationSet{
		// Re-running this statement would fail, so a second clean apply
		// proves the migration was not re-executed.
		{Name: "v1", Statements: []string{"CREATE TABLE t(id TEXT)"}},
	}
	a := openTestAdapter(t, ms)

	if err := a.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("first ApplyMigrations: %v", err)
	}
	if err := a.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}

	applied, err := a.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 1 {
		t.Fatalf("expected one bookkeeping row, got %v", applied)
	}
}

func TestApplyMigrationsSkipsPriorRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	v1 := bridge.Migration{Name: "v1", Statements: []string{"CREATE TABLE t(id TEXT)"}}
	v2 := bridge.Migration{Name: "v2", Statements: []string{"ALTER TABLE t ADD COLUMN name TEXT"}}

	first := openAdapterAt(t, path, bridge.MigrationSet{v1})
	if err := first.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("apply v1: %v", err)
	}

	// A fresh adapter over the same file sees v1 recorded and applies only
	// v2; re-executing v1's CREATE TABLE would fail.
	second := openAdapterAt(t, path, bridge.MigrationSet{v1, v2})
	if err := second.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("apply v2: %v", err)
	}

	applied, err := second.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 2 || applied[0] != "v1" || applied[1] != "v2" {
		t.Fatalf("expected [v1 v2], got %v", applied)
	}
}

func TestApplyMigrationsPartialFailureCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	a := openAdapterAt(t, path, bridge.MigrationSet{
		{Name: "v1", Statements: []string{"CREATE TABLE a(id TEXT)"}},
		{Name: "v2", Statements: []string{
			"CREATE TABLE b(id TEXT)",
			"INSERT INTO missing_table VALUES (1)",
		}},
		{Name: "v3", Statements: []string{"CREATE TABLE c(id TEXT)"}},
	})

	err := a.ApplyMigrations(context.Background())
	var merr *bridge.MigrationError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
	if merr.Name != "v2" {
		t.Fatalf("expected failure in v2, got %q", merr.Name)
	}

	applied, err := a.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 1 || applied[0] != "v1" {
		t.Fatalf("expected checkpoint at v1, got %v", applied)
	}

	// v2's first statement was rolled back with the rest of its
	// transaction, and v3 was never attempted.
	if tableExists(t, a, "b") {
		t.Fatal("table b must not survive the rolled-back migration")
	}
	if tableExists(t, a, "c") {
		t.Fatal("table c must not exist; v3 was never attempted")
	}

	// Fixing v2 and re-running resumes from the checkpoint.
	fixed := openAdapterAt(t, path, bridge.MigrationSet{
		{Name: "v1", Statements: []string{"CREATE TABLE a(id TEXT)"}},
		{Name: "v2", Statements: []string{"CREATE TABLE b(id TEXT)"}},
		{Name: "v3", Statements: []string{"CREATE TABLE c(id TEXT)"}},
	})
	if err := fixed.ApplyMigrations(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	applied, err = fixed.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected [v1 v2 v3], got %v", applied)
	}
}

func TestStartFiresReadySignal(t *testing.T) {
	a := openTestAdapter(t, bridge.MigrationSet{
		{Name: "v1", Statements: []string{"CREATE TABLE t(id TEXT)"}},
	})

	var sawReady bool
	a.Ready().Subscribe(func(ready bool) { sawReady = ready })

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sawReady {
		t.Fatal("expected ready signal after Start")
	}
}

func TestStartMigrationFailureIsFatal(t *testing.T) {
	a := openTestAdapter(t, bridge.MigrationSet{
		{Name: "v1", Statements: []string{"INSERT INTO missing_table VALUES (1)"}},
	})

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	if a.Ready().Committed() {
		t.Fatal("ready signal must not fire when migrations fail")
	}
}

func TestStartWithoutMigrations(t *testing.T) {
	a := openTestAdapter(t, nil)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !a.Ready().Committed() {
		t.Fatal("adapter without migrations must still become ready")
	}
}

func TestStartBootstrapsLegacyBookkeeping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Simulate a database managed by the old numeric tracking: version 2 of
	// three migrations already applied, but v1/v2's tables exist only in the
	// legacy world (here: not at all, which proves their statements are not
	// re-executed).
	seed := openAdapterAt(t, path, nil)
	ctx := context.Background()
	if _, err := seed.Dispatch(ctx, "CREATE TABLE schema_version (version INTEGER PRIMARY KEY)", nil, bridge.ShapeNone); err != nil {
		t.Fatalf("create schema_version: %v", err)
	}
	for v := 1; v <= 2; v++ {
		if _, err := seed.Dispatch(ctx, "INSERT INTO schema_version (version) VALUES (?)", []any{v}, bridge.ShapeNone); err != nil {
			t.Fatalf("insert version %d: %v", v, err)
		}
	}

	a := openAdapterAt(t, path, bridge.MigrationSet{
		{Name: "0001_users", Statements: []string{"CREATE TABLE users(id TEXT)"}},
		{Name: "0002_posts", Statements: []string{"CREATE TABLE posts(id TEXT)"}},
		{Name: "0003_tags", Statements: []string{"CREATE TABLE tags(id TEXT)"}},
	})
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	applied, err := a.AppliedMigrations(ctx)
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(applied) != 3 {
		t.Fatalf("expected 3 applied, got %v", applied)
	}

	// Seeded names were recorded without running their statements; only the
	// third migration actually executed.
	if tableExists(t, a, "users") || tableExists(t, a, "posts") {
		t.Fatal("legacy-seeded migrations must not be re-executed")
	}
	if !tableExists(t, a, "tags") {
		t.Fatal("expected the still-pending migration to run")
	}
}
