package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/crawl"
	"github.com/sells-group/surveillance-cli/internal/model"
)

var discoverAll bool

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List bulletin pages not yet processed",
	Long:  "Reads the bulletin listing (or the Firecrawl map) and prints page URLs missing from the ledger, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}
		d, err := crawl.New(cfg.Crawl, cfg.Firecrawl, initFetcher())
		if err != nil {
			return err
		}

		links, err := d.Discover(ctx)
		if err != nil {
			return eris.Wrap(err, "discover")
		}

		seen := map[string]bool{}
		if !discoverAll {
			ledger, err := initLedger(ctx)
			if err != nil {
				return err
			}
			defer ledger.Close() //nolint:errcheck
			if seen, err = ledger.ProcessedURLs(ctx); err != nil {
				return eris.Wrap(err, "discover: load ledger")
			}
		}

		pending := crawl.NewLinks(links, seen)
		writeLinks(os.Stdout, pending)
		fmt.Fprintf(os.Stderr, "%d discovered, %d new\n", len(links), len(pending))
		return nil
	},
}

func init() {
	discoverCmd.Flags().BoolVar(&discoverAll, "all", false, "include bulletins already in the ledger")
	rootCmd.AddCommand(discoverCmd)
}

// writeLinks prints one "<file id>\t<url>" line per link.
func writeLinks(w io.Writer, links []string) {
	for _, l := range links {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", model.FileID(l), l)
	}
}
