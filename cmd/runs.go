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

	"github.com/sells-group/datapipe-cli/internal/model"
	"github.com/sells-group/datapipe-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect pipeline run history",
	Long:  "Commands for listing, viewing, and summarizing pipeline runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pipeline runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "runs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pipeline, _ := cmd.Flags().GetString("pipeline")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Pipeline: pipeline,
			Status:   model.RunStatus(status),
			Limit:    limit,
		}

		runs, err := st.ListPipelineRuns(ctx, filter)
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

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "runs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetPipelineRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "runs")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pipeline, _ := cmd.Flags().GetString("pipeline")
		filter := store.RunFilter{
			Pipeline: pipeline,
			Limit:    10000, // high limit for stats
		}

		runs, err := st.ListPipelineRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeRunStats(runs)
		formatRunStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("pipeline", "", "filter by pipeline name (ingest, clean, flags, metrics, demo)")
	runsListCmd.Flags().String("status", "", "filter by run status (running, succeeded, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().String("pipeline", "", "restrict stats to one pipeline")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Succeeded  int
	Failed     int
	Running    int
	InTotal    int64
	OutTotal   int64
	AvgDurSecs float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.PipelineRun) runStats {
	var s runStats
	s.Total = len(runs)

	var totalMS int64
	var durCount int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusSucceeded:
			s.Succeeded++
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
		if r.DurationMS != nil {
			totalMS += *r.DurationMS
			durCount++
		}
		if r.RecordsIn != nil {
			s.InTotal += *r.RecordsIn
		}
		if r.RecordsOut != nil {
			s.OutTotal += *r.RecordsOut
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = float64(totalMS) / float64(durCount) / 1000
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.PipelineRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPIPELINE\tSTATUS\tSTARTED\tDURATION\tIN\tOUT\tERROR")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t-------\t--------\t--\t---\t-----")

	for _, r := range runs {
		dur := ""
		if r.DurationMS != nil {
			dur = (time.Duration(*r.DurationMS) * time.Millisecond).Round(time.Millisecond).String()
		}

		in, out := "", ""
		if r.RecordsIn != nil {
			in = fmt.Sprintf("%d", *r.RecordsIn)
		}
		if r.RecordsOut != nil {
			out = fmt.Sprintf("%d", *r.RecordsOut)
		}

		errKind := ""
		if r.ErrorKind != nil {
			errKind = *r.ErrorKind
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Pipeline,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			in,
			out,
			errKind,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Records in:\t%d\n", s.InTotal)
	_, _ = fmt.Fprintf(w, "Records out:\t%d\n", s.OutTotal)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
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
