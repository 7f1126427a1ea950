package main

import (
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/db"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upsert the historical table into Postgres",
	Long:  "Mirrors the historical CSV into a Postgres table keyed on (reference_date, target_end_date, pathogen) for dashboards.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("publish"); err != nil {
			return err
		}
		hs, err := initHistory()
		if err != nil {
			return err
		}
		records, err := hs.Load(ctx)
		if err != nil {
			return err
		}

		pool, err := pgxpool.New(ctx, cfg.Publish.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "publish: connect")
		}
		defer pool.Close()

		n, err := db.PublishRecords(ctx, pool, cfg.Publish.Table, records)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "published %d rows to %s (%d affected)\n", len(records), cfg.Publish.Table, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
