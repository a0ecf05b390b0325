package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fatture/internal/storage"
)

func newMigrateCmd(_ *rootOptions) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the SQLite schema for sessions and export jobs",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default SQLITE_DB_PATH)")

	resolve := func() (string, error) {
		if dbPath != "" {
			return dbPath, nil
		}
		cfg, err := loadConfigOnly()
		if err != nil {
			return "", err
		}
		if cfg.SQLiteDBPath == "" {
			return "", errors.New("no database: set SQLITE_DB_PATH or --db")
		}
		return cfg.SQLiteDBPath, nil
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := resolve()
				if err != nil {
					return err
				}
				if err := storage.RunMigrations(path); err != nil {
					return err
				}
				return printVersion(cmd, path)
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default one step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n < 1 {
						return fmt.Errorf("invalid steps %q: want a positive number", args[0])
					}
					steps = n
				}
				path, err := resolve()
				if err != nil {
					return err
				}
				if err := storage.RollbackMigrations(path, steps); err != nil {
					return err
				}
				return printVersion(cmd, path)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := resolve()
				if err != nil {
					return err
				}
				return printVersion(cmd, path)
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, path string) error {
	v, dirty, err := storage.MigrationVersion(path)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d (%s)\n", path, v, state)
	return nil
}
