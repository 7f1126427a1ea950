package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/monitoring"
	"github.com/sells-group/surveillance-cli/internal/store"
)

var checkStrict bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that bulletin updates are still landing",
	Long: "Reads the ledger, reports run failure rate and the newest merged bulletin, " +
		"and posts any alerts to monitor.webhook_url.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("check"); err != nil {
			return err
		}
		st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, alerts, err := newChecker(st).Check(ctx)
		if err != nil {
			return err
		}

		formatCheck(os.Stdout, snap, alerts)
		if checkStrict && len(alerts) > 0 {
			return eris.Errorf("check: %d alert(s) triggered", len(alerts))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "exit non-zero when any alert triggers")
	rootCmd.AddCommand(checkCmd)
}

// newChecker builds a ledger health checker from the monitor section.
func newChecker(ledger store.Store) *monitoring.Checker {
	return monitoring.NewChecker(
		monitoring.NewCollector(ledger),
		monitoring.NewAlerter(cfg.Monitor),
		cfg.Monitor,
	)
}

// formatCheck writes the snapshot summary followed by any alerts.
func formatCheck(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Runs:\t%d (%d complete, %d failed)\n", snap.Runs, snap.RunsComplete, snap.RunsFailed)
	fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.RunFailRate*100)
	if snap.LastRunAt != nil {
		fmt.Fprintf(w, "Last run:\t%s %s\n", snap.LastRunAt.Format("2006-01-02 15:04"), snap.LastRunStatus)
	}
	latest := snap.LatestReference
	if latest == "" {
		latest = "-"
	}
	fmt.Fprintf(w, "Newest bulletin:\t%s\n", latest)
	fmt.Fprintf(w, "Documents:\t%d done, %d failed\n", snap.DocumentsDone, snap.DocumentsFailed)
	w.Flush() //nolint:errcheck

	if len(alerts) == 0 {
		fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALERT\tSEVERITY\tMESSAGE")
	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", a.Type, a.Severity, a.Message)
	}
	w.Flush() //nolint:errcheck
}
