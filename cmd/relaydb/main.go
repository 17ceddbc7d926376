package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joestump/relaydb/internal/bridge"
	"github.com/joestump/relaydb/internal/config"
	"github.com/joestump/relaydb/internal/mcpserver"
	"github.com/joestump/relaydb/internal/schema"
	"github.com/joestump/relaydb/internal/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "relaydb",
		Short:   "SQLite adapter with named migrations and transaction-state tracking",
		Version: config.Version,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("db", "relaydb.db", "path to the SQLite database file")
	pf.String("migrations", "migrations", "directory of {version}_{description}.sql migration files")
	pf.Bool("allow-writes", false, "allow write statements through the query and mcp surfaces")
	pf.Bool("wrap-first", true, "treat the first dispatched statement as needing an implicit transaction")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE:  runMigrate,
	}
	migrateCmd.Flags().Bool("goose", false, "apply goose-format migration files directly to the database file")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE:  runStatus,
	}

	queryCmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a statement and print its rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve database tools over MCP stdio",
		RunE:  runMCP,
	}

	rootCmd.AddCommand(migrateCmd, statusCmd, queryCmd, mcpCmd)

	// Bind flags to viper. Viper keys use underscores so they match the env
	// var suffix after stripping the RELAYDB_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, pf.Lookup(flagName))
	}
	bindFlag("db", "db")
	bindFlag("migrations", "migrations")
	bindFlag("allow_writes", "allow-writes")
	bindFlag("wrap_first", "wrap-first")
	_ = viper.BindPFlag("goose", migrateCmd.Flags().Lookup("goose"))

	viper.SetEnvPrefix("RELAYDB")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openAdapter opens the local executor and binds the migration set from the
// configured directory. A missing directory means no migrations, which is
// fine for read-only commands.
func openAdapter(cfg config.Config) (*bridge.Adapter, *sqlite.Executor, error) {
	exec, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	var set bridge.MigrationSet
	if _, err := os.Stat(cfg.MigrationsDir); err == nil {
		set, err = schema.Load(os.DirFS(cfg.MigrationsDir))
		if err != nil {
			_ = exec.Close()
			return nil, nil, err
		}
	}

	adapter := bridge.New(exec,
		bridge.WithMigrations(set),
		bridge.WithWrapFirst(cfg.WrapFirst),
	)
	return adapter, exec, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Goose {
		return runGooseMigrate(cmd.Context(), cfg)
	}

	adapter, exec, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	if len(adapter.Migrations()) == 0 {
		return fmt.Errorf("no migration files found in %s", cfg.MigrationsDir)
	}

	// Start handles legacy bootstrap, pending computation, and the ready
	// flip; reading bookkeeping before it would interfere with the
	// bootstrap's fresh-database detection.
	if err := adapter.Start(cmd.Context()); err != nil {
		var merr *bridge.MigrationError
		if errors.As(err, &merr) {
			return fmt.Errorf("migration %q failed (earlier migrations stay committed): %w", merr.Name, merr.Err)
		}
		return err
	}

	applied, err := adapter.AppliedMigrations(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%d of %d migrations applied, database ready\n", len(applied), len(adapter.Migrations()))
	return nil
}

// runGooseMigrate is the operator path for hosts with direct filesystem
// access to the database: goose applies its own file format and keeps its
// own bookkeeping, independent of the bridge engine.
func runGooseMigrate(ctx context.Context, cfg config.Config) error {
	exec, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer exec.Close() //nolint:errcheck

	provider, err := goose.NewProvider(goose.DialectSQLite3, exec.Conn(), os.DirFS(cfg.MigrationsDir))
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	for _, r := range results {
		fmt.Printf("applied %s (%s)\n", r.Source.Path, r.Duration)
	}
	fmt.Printf("%d applied\n", len(results))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	adapter, exec, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	applied, err := adapter.AppliedMigrations(cmd.Context())
	if err != nil {
		return err
	}
	pending, err := adapter.PendingMigrations(cmd.Context())
	if err != nil {
		return err
	}

	for _, name := range applied {
		fmt.Printf("applied  %s\n", name)
	}
	for _, name := range pending {
		fmt.Printf("pending  %s\n", name)
	}
	if len(applied) == 0 && len(pending) == 0 {
		fmt.Println("no migrations")
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	sqlText := args[0]

	if !cfg.AllowWrites && !bridge.ReadOnly(sqlText) {
		return fmt.Errorf("statement is not read-only (pass --allow-writes to run it)")
	}

	adapter, exec, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	shape := bridge.ShapeRows
	if !bridge.ReadOnly(sqlText) {
		shape = bridge.ShapeNone
	}

	rows, err := adapter.Dispatch(cmd.Context(), sqlText, nil, shape)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	adapter, exec, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer exec.Close() //nolint:errcheck

	// Migrations run before the server accepts tool calls; a failure here is
	// fatal to startup.
	if err := adapter.Start(cmd.Context()); err != nil {
		return err
	}

	return mcpserver.New(adapter, cfg.AllowWrites).Run(cmd.Context())
}
