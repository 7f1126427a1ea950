package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/model"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <batch.csv|batch.xlsx>...",
	Short: "Merge record files into the historical tables",
	Long:  "Folds one or more batch files (CSV or XLSX with the history header) into the historical table; newer batches win on the natural key.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("merge"); err != nil {
			return err
		}
		hs, err := initHistory()
		if err != nil {
			return err
		}

		batch, err := loadBatches(ctx, args)
		if err != nil {
			return err
		}
		sum, err := hs.Merge(ctx, batch)
		if err != nil {
			return err
		}
		formatSummary(os.Stdout, sum)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}

// loadBatches concatenates batch files in argument order. Within the
// combined batch the first occurrence of a key wins.
func loadBatches(ctx context.Context, paths []string) ([]model.SurveillanceRecord, error) {
	var batch []model.SurveillanceRecord
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, eris.Wrapf(err, "merge: batch %s", p)
		}
		records, err := history.ReadFile(ctx, p)
		if err != nil {
			return nil, err
		}
		zap.L().Info("merge: loaded batch", zap.String("path", p), zap.Int("records", len(records)))
		batch = append(batch, records...)
	}
	return batch, nil
}
