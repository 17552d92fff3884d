package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/celerix-dev/celerix-market/internal/engine"
	"github.com/celerix-dev/celerix-market/internal/storage/sqljournal"
)

func init() {
	var dataDir, driver, dsn string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the file journal in --data-dir into a SQL database",
		Long: "Copy every record of the file journal into an empty SQLite or PostgreSQL\n" +
			"journal. Runs locally; the daemon should be stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := zerolog.New(os.Stderr).With().Timestamp().Logger()

			src, err := engine.NewFileJournal(dataDir, log)
			if err != nil {
				return err
			}
			defer src.Close()

			dst, err := sqljournal.Open(ctx, driver, dsn, log)
			if err != nil {
				return err
			}
			defer dst.Close()

			if err := engine.Migrate(ctx, src, dst); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "migrated %s to %s\n", src.Path(), driver)
			return nil
		},
	}
	migrateCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory holding the file journal")
	migrateCmd.Flags().StringVar(&driver, "driver", sqljournal.DriverSQLite, "sqlite or postgres")
	migrateCmd.Flags().StringVar(&dsn, "dsn", "file:./data/ledger.db", "Destination DSN")
	rootCmd.AddCommand(migrateCmd)

	compactCmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the file journal in --data-dir, dropping a torn trailing record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return compact(cmd.Context(), dataDir)
		},
	}
	compactCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory holding the file journal")
	rootCmd.AddCommand(compactCmd)
}

func compact(ctx context.Context, dataDir string) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	j, err := engine.NewFileJournal(dataDir, log)
	if err != nil {
		return err
	}
	ledger, err := engine.Open(ctx, j, engine.WithLogger(log))
	if err != nil {
		j.Close()
		return err
	}
	defer ledger.Close()

	snap, err := ledger.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := j.Compact(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "compacted %s: %d works, %d purchases\n", j.Path(), len(snap.Works), len(snap.Purchases))
	return nil
}
