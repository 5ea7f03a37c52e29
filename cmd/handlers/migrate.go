package handlers

import (
	"context"
	"fmt"

	"kynews/internal/persistence"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command for database migrations
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage database schema migrations.

Subcommands:
  up       Apply all pending migrations
  status   Show migration status

The migration system tracks applied migrations in the schema_migrations
table and applies new migrations in sequential order.

Examples:
  # Apply all pending migrations
  kynewsd migrate up

  # Check migration status
  kynewsd migrate status`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Long: `Apply all pending database migrations.

Migrations are applied in a transaction and roll back on failure.

Example:
  kynewsd migrate up`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd.Context())
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long: `Show which migrations have been applied and which are pending.

Example:
  kynewsd migrate status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd.Context())
		},
	}
}

func getMigrator() (*persistence.MigrationManager, persistence.Database, error) {
	db, err := getDatabase()
	if err != nil {
		return nil, nil, err
	}

	pgDB, ok := db.(*persistence.PostgresDB)
	if !ok {
		_ = db.Close()
		return nil, nil, fmt.Errorf("only PostgreSQL is supported for migrations")
	}
	return persistence.NewMigrationManager(pgDB), db, nil
}

func runMigrateUp(ctx context.Context) error {
	migrator, db, err := getMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("All migrations applied successfully")
	return nil
}

func runMigrateStatus(ctx context.Context) error {
	migrator, db, err := getMigrator()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	status, err := migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	if len(status) == 0 {
		fmt.Println("No migrations found")
		return nil
	}

	fmt.Printf("%-10s %-10s %s\n", "Version", "Status", "Description")
	applied, pending := 0, 0
	for _, m := range status {
		state := "pending"
		if m.Applied {
			state = "applied"
			applied++
		} else {
			pending++
		}
		fmt.Printf("%-10d %-10s %s\n", m.Version, state, m.Description)
	}

	fmt.Printf("\nApplied: %d | Pending: %d | Total: %d\n", applied, pending, len(status))
	if pending > 0 {
		fmt.Println("\nRun 'kynewsd migrate up' to apply pending migrations")
	}
	return nil
}
