package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/ignews/internal/pkg/database"
)

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the SQL migrations",
		Long: `Runs the migrations in migrations/<DB_DRIVER> against the configured database.

Examples:
  ignewsctl migrate up
  ignewsctl migrate goto 1
  ignewsctl migrate status`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "migrations directory (default migrations/<DB_DRIVER>)")

	open := func() (*migrate.Migrate, error) {
		cfg := database.LoadConfig()
		source := dir
		if source == "" {
			source = "migrations/" + cfg.Driver
		}
		fmt.Printf("Connecting to %s@%s:%s/%s\n", cfg.User, cfg.Host, cfg.Port, cfg.Name)
		m, err := migrate.New("file://"+source, cfg.MigrationURL())
		if err != nil {
			return nil, fmt.Errorf("init migrations: %w", err)
		}
		return m, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer closeMigrate(m)
			return report(m.Up(), "migrations applied")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer closeMigrate(m)
			return report(m.Steps(-1), "last migration rolled back")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "goto [version]",
		Short: "Migrate to the given version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			m, err := open()
			if err != nil {
				return err
			}
			defer closeMigrate(m)
			return report(m.Migrate(uint(version)), fmt.Sprintf("migrated to version %d", version))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer closeMigrate(m)

			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Println("No migrations applied yet")
				return nil
			}
			if err != nil {
				return fmt.Errorf("read version: %w", err)
			}
			dirtyStatus := ""
			if dirty {
				dirtyStatus = " (dirty)"
			}
			fmt.Printf("Current version: %d%s\n", version, dirtyStatus)
			return nil
		},
	})

	return cmd
}

func report(err error, success string) error {
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("No change: database is up to date")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(success)
	return nil
}

func closeMigrate(m *migrate.Migrate) {
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		fmt.Printf("closing migrations: %v, %v\n", sourceErr, dbErr)
	}
}
