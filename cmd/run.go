package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/pipeline"
)

var (
	runLimit     int
	runReprocess bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover, acquire, extract and merge new bulletins",
	Long:  "Runs one update: lists bulletin pages, skips pages already processed, converts the rest to text, extracts records and merges them into the historical tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Runner.Run(ctx, pipeline.Options{
			Limit:     runLimit,
			Reprocess: runReprocess,
		})
		if report != nil {
			formatReport(os.Stdout, report)
		}
		return err
	},
}

func init() {
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most this many new bulletins, newest first (0 = all)")
	runCmd.Flags().BoolVar(&runReprocess, "reprocess", false, "ignore the ledger and process every discovered bulletin")
	rootCmd.AddCommand(runCmd)
}

// formatReport writes per-document outcomes and merge counts to w.
func formatReport(out io.Writer, r *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if len(r.Outcomes) > 0 {
		_, _ = fmt.Fprintln(w, "DOCUMENT\tSTATUS\tSTRATEGY\tRECORDS\tERROR")
		_, _ = fmt.Fprintln(w, "--------\t------\t--------\t-------\t-----")
		for _, o := range r.Outcomes {
			errMsg := ""
			if o.Err != nil {
				errMsg = truncate(o.Err.Error(), 60)
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.Document, o.Status, o.Strategy, o.Records, errMsg)
		}
		_, _ = fmt.Fprintln(w)
	}
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", truncateID(r.RunID))
	_, _ = fmt.Fprintf(w, "Discovered:\t%d\n", r.Discovered)
	_, _ = fmt.Fprintf(w, "New:\t%d\n", r.Pending)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", r.Summary.Batch)
	_, _ = fmt.Fprintf(w, "Added:\t%d\n", r.Summary.Added)
	_, _ = fmt.Fprintf(w, "Replaced:\t%d\n", r.Summary.Replaced)
	_, _ = fmt.Fprintf(w, "Total rows:\t%d\n", r.Summary.Total)
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
