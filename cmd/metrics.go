package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/datapipe-cli/internal/track"
)

var metricsDays int

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Rebuild the summary rollups and print them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "metrics")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tr, err := track.Start(ctx, st, "metrics", fmt.Sprintf("days=%d", metricsDays))
		if err != nil {
			return err
		}
		if err := tr.Step("apply_metrics_views", nil, func() error {
			return st.ApplyMetricsViews(ctx)
		}); err != nil {
			tr.Fail(ctx, err)
			return err
		}
		if err := tr.Succeed(ctx); err != nil {
			return err
		}

		daily, err := st.DailyMetrics(ctx, metricsDays)
		if err != nil {
			return err
		}
		monthly, err := st.MonthlyMetrics(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "DAY\tTOTAL\tDISTINCT\tSOURCE IDS\tSOURCES\tCATEGORIES\n")
		for _, m := range daily {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
				m.Day.Format("2006-01-02"), m.TotalRecords, m.DistinctRecords,
				m.DistinctSourceIDs, m.DistinctSources, m.DistinctCategories)
		}
		fmt.Fprintf(w, "\nMONTH\tTOTAL\tDISTINCT\tSOURCE IDS\tSOURCES\tCATEGORIES\n")
		for _, m := range monthly {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
				m.MonthStart.Format("2006-01"), m.TotalRecords, m.DistinctRecords,
				m.DistinctSourceIDs, m.DistinctSources, m.DistinctCategories)
		}
		return w.Flush()
	},
}

func init() {
	metricsCmd.Flags().IntVar(&metricsDays, "days", 30, "window for the daily rollup")
	rootCmd.AddCommand(metricsCmd)
}
