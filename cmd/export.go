package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/surveillance-cli/internal/history"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the historical tables to XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		hs, err := initHistory()
		if err != nil {
			return err
		}

		all, err := hs.Load(ctx)
		if err != nil {
			return err
		}
		covid := history.Subset(all, hs.Covid())

		if err := history.WriteXLSX(exportOut, all, covid); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d rows (%d COVID-19) to %s\n", len(all), len(covid), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "data/surveillance.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
