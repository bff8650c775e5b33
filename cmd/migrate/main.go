package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"horizon.shop/internal/store"
	"horizon.shop/internal/store/pg"
)

func main() {
	var dsn string
	rootCmd := &cobra.Command{
		Use:          "horizon-migrate",
		Short:        "Manage the Horizon PostgreSQL schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("missing DSN: provide via --dsn or HORIZON_DATABASE_URL")
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("HORIZON_DATABASE_URL"), "PostgreSQL DSN")

	rootCmd.AddCommand(
		migrateCmd("up", "Apply all pending migrations", &dsn, (*pg.Migrator).Up),
		migrateCmd("down", "Roll back one migration", &dsn, (*pg.Migrator).Down),
		statusCmd(&dsn),
		seedCmd(&dsn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd(use, short string, dsn *string, run func(*pg.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(*dsn, func(m *pg.Migrator) error {
				if err := run(m); err != nil {
					return fmt.Errorf("migrate %s: %w", use, err)
				}
				return nil
			})
		},
	}
}

func statusCmd(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(*dsn, func(m *pg.Migrator) error {
				version, dirty, err := m.Status()
				if err != nil {
					return err
				}
				files, err := pg.Migrations()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "version %d dirty=%t\n", version, dirty)
				for _, f := range files {
					fmt.Fprintln(out, f)
				}
				return nil
			})
		},
	}
}

func seedCmd(dsn *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.json>",
		Short: "Load fixture documents into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			backend, err := pg.Open(*dsn, 30*time.Second)
			if err != nil {
				return err
			}
			st := store.New(backend)
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			n, err := store.Seed(ctx, st, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d documents\n", n)
			return nil
		},
	}
}

func withMigrator(dsn string, fn func(*pg.Migrator) error) error {
	backend, err := pg.Open(dsn, 30*time.Second)
	if err != nil {
		return err
	}
	defer backend.Close()
	m, err := pg.NewMigrator(backend.DB())
	if err != nil {
		return err
	}
	return fn(m)
}
