package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the document ledger",
	Long:  "Commands for listing pipeline runs and the bulletins they processed.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs docs --

var runsDocsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List processed bulletins",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		runID, _ := cmd.Flags().GetString("run")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		docs, err := st.ListDocuments(ctx, store.DocumentFilter{
			Status: store.DocumentStatus(status),
			RunID:  runID,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs docs")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		if len(docs) == 0 {
			fmt.Fprintln(os.Stderr, "No documents found.")
			return nil
		}
		formatDocumentsList(os.Stdout, docs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "max number of runs to display")

	runsDocsCmd.Flags().String("status", "", "filter by document status (done, empty, failed)")
	runsDocsCmd.Flags().String("run", "", "filter by run ID")
	runsDocsCmd.Flags().Int("limit", 50, "max number of documents to display")
	runsDocsCmd.Flags().Bool("json", false, "print documents as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsDocsCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tDISCOVERED\tDOCS\tRECORDS\tADDED\tREPLACED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t----------\t----\t-------\t-----\t--------\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Status,
			r.Discovered,
			r.Documents,
			r.Records,
			r.Added,
			r.Replaced,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatDocumentsList writes a tabular list of ledger documents to w.
func formatDocumentsList(out io.Writer, docs []store.Document) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tSTATUS\tSTRATEGY\tRECORDS\tREFERENCE\tPROCESSED\tERROR")
	_, _ = fmt.Fprintln(w, "----\t------\t--------\t-------\t---------\t---------\t-----")

	for _, d := range docs {
		file := d.FileID
		if file == "" {
			file = d.URL
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			file,
			d.Status,
			d.Strategy,
			d.RecordCount,
			d.ReferenceDate,
			d.ProcessedAt.Format("2006-01-02 15:04"),
			truncate(d.Error, 50),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
