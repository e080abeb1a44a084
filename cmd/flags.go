package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/datapipe-cli/internal/flags"
)

var (
	flagsLimit int
	flagsOut   string
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Score raw records and write the quality flag report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "flags")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit := flagsLimit
		if limit == 0 {
			limit = cfg.Flags.Limit
		}
		out := flagsOut
		if out == "" {
			out = cfg.Flags.ReportPath
		}

		res, err := flags.Report(ctx, st, limit, out)
		if err != nil {
			return err
		}

		fmt.Printf("Flagged records: %d / %d\n", res.FlaggedRecords, res.TotalRecords)
		fmt.Printf("Wrote: %s\n", res.ReportPath)
		return nil
	},
}

func init() {
	flagsCmd.Flags().IntVar(&flagsLimit, "limit", 0, "max raw records to flag (default from config)")
	flagsCmd.Flags().StringVar(&flagsOut, "out", "", "report output path (default from config)")
	rootCmd.AddCommand(flagsCmd)
}
