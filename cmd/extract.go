package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/extract"
	"github.com/sells-group/surveillance-cli/internal/history"
	"github.com/sells-group/surveillance-cli/internal/model"
)

var (
	extractOut   string
	extractMerge bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file|dir|glob>",
	Short: "Extract records from bulletin text files",
	Long:  "Extracts per-pathogen ILI/SARI rates from Markdown or text bulletins and writes them as CSV. With --merge the records are folded into the historical tables.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := validateExtract(extractMerge); err != nil {
			return err
		}

		docs, err := extract.LoadDocuments(args[0])
		if err != nil {
			return err
		}
		ex, err := initExtractor()
		if err != nil {
			return err
		}

		records, results, err := ex.ExtractBatch(ctx, docs)
		if err != nil {
			return err
		}
		formatResults(os.Stderr, results)

		if extractOut != "" {
			if err := writeRecordsFile(extractOut, records); err != nil {
				return err
			}
		} else if !extractMerge {
			if err := history.WriteCSV(os.Stdout, records); err != nil {
				return err
			}
		}

		if !extractMerge {
			return nil
		}
		hs, err := initHistory()
		if err != nil {
			return err
		}
		sum, err := hs.Merge(ctx, records)
		if err != nil {
			return err
		}
		formatSummary(os.Stdout, sum)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVarP(&extractOut, "out", "o", "", "write extracted records to this CSV file (default stdout)")
	extractCmd.Flags().BoolVar(&extractMerge, "merge", false, "merge extracted records into the historical tables")
	rootCmd.AddCommand(extractCmd)
}

// validateExtract checks strategies, plus history paths when merging.
func validateExtract(merge bool) error {
	if err := cfg.Validate("extract"); err != nil {
		return err
	}
	if merge {
		return cfg.Validate("merge")
	}
	return nil
}

func writeRecordsFile(path string, records []model.SurveillanceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := history.WriteCSV(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}

// formatResults writes one line per document: strategy, records, score or
// failure.
func formatResults(out io.Writer, results []extract.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOCUMENT\tSTRATEGY\tRECORDS\tSCORE\tPERIOD\tERROR")
	for _, r := range results {
		errMsg := ""
		if r.Err != nil {
			errMsg = truncate(r.Err.Error(), 60)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Document, r.Strategy, len(r.Records), r.Score, r.Period.Matcher, errMsg)
	}
	_ = w.Flush()
}

// formatSummary writes merge counts to w.
func formatSummary(out io.Writer, s history.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Batch:\t%d\n", s.Batch)
	_, _ = fmt.Fprintf(w, "Existing:\t%d\n", s.Existing)
	_, _ = fmt.Fprintf(w, "Added:\t%d\n", s.Added)
	_, _ = fmt.Fprintf(w, "Replaced:\t%d\n", s.Replaced)
	_, _ = fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "COVID-19:\t%d\n", s.Covid)
	_ = w.Flush()
}
