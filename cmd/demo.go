package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/datapipe-cli/internal/clean"
	"github.com/sells-group/datapipe-cli/internal/flags"
	"github.com/sells-group/datapipe-cli/internal/ingest"
	"github.com/sells-group/datapipe-cli/internal/model"
	"github.com/sells-group/datapipe-cli/internal/track"
)

//go:embed sample.csv
var demoCSV []byte

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the full pipeline end to end on bundled sample data",
	Long:  "Ingests a bundled CSV and a generated XLSX workbook, refreshes the clean projection, writes the flag report, and prints a summary of the tracked run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "demo")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		xlsxData, err := buildDemoXLSX()
		if err != nil {
			return err
		}
		files := []ingest.NamedFile{
			{Name: "sample.csv", Data: demoCSV},
			{Name: "sample.xlsx", Data: xlsxData},
		}

		tr, err := track.Start(ctx, st, "demo", "sample.csv,sample.xlsx")
		if err != nil {
			return err
		}

		var ingRes *ingest.Result
		if err := tr.Step("ingest", nil, func() error {
			var err error
			ingRes, err = ingest.NewService(st).IngestFiles(ctx, "demo", files)
			return err
		}); err != nil {
			tr.Fail(ctx, err)
			return err
		}

		var cleanTotal int64
		if err := tr.Step("clean", nil, func() error {
			var err error
			cleanTotal, err = clean.Refresh(ctx, st, cfg.Clean.Limit, clean.DefaultConfig())
			return err
		}); err != nil {
			tr.Fail(ctx, err)
			return err
		}

		var flagRes *flags.ReportResult
		if err := tr.Step("flags", nil, func() error {
			var err error
			flagRes, err = flags.Report(ctx, st, cfg.Flags.Limit, cfg.Flags.ReportPath)
			return err
		}); err != nil {
			tr.Fail(ctx, err)
			return err
		}

		tr.SetCounts(ingRes.TotalRecords, cleanTotal)
		if err := tr.Succeed(ctx); err != nil {
			return err
		}

		run, err := st.GetPipelineRun(ctx, tr.RunID())
		if err != nil {
			return eris.Wrap(err, "demo summary")
		}

		fmt.Printf("Ingested %d records (%d new, %d deduped)\n",
			ingRes.TotalRecords, ingRes.InsertedRecords, ingRes.DedupedRecords)
		fmt.Printf("Clean records: %d\n", cleanTotal)
		fmt.Printf("Flagged %d of %d records, report at %s\n",
			flagRes.FlaggedRecords, flagRes.TotalRecords, flagRes.ReportPath)
		fmt.Println()
		printDemoSummary(os.Stdout, run)
		return nil
	},
}

// buildDemoXLSX generates a small workbook in memory so the demo
// exercises both parsers. One row overlaps the CSV content to show
// cross-file deduplication.
func buildDemoXLSX() ([]byte, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	if err != nil {
		return nil, eris.Wrap(err, "build demo workbook")
	}

	rows := [][]string{
		{"source_id", "category", "event_time", "value"},
		{"ord-1001", "sales", "2026-08-30T09:15:00", "125.50"},
		{"ord-2001", "sales", "2026-08-31T09:00:00", "310.00"},
		{"ord-2002", "refunds", "2026-08-31T09:30:00", "45.75"},
	}
	for _, cells := range rows {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "build demo workbook")
	}
	return buf.Bytes(), nil
}

// printDemoSummary renders the fixed-width box that closes the demo.
func printDemoSummary(w io.Writer, run *model.PipelineRun) {
	const width = 60

	pairs := [][2]string{
		{"run_id", run.ID},
		{"status", string(run.Status)},
	}
	if run.DurationMS != nil {
		pairs = append(pairs, [2]string{"duration_ms", fmt.Sprintf("%d", *run.DurationMS)})
	}
	if run.RecordsIn != nil {
		pairs = append(pairs, [2]string{"records_in", fmt.Sprintf("%d", *run.RecordsIn)})
	}
	if run.RecordsOut != nil {
		pairs = append(pairs, [2]string{"records_out", fmt.Sprintf("%d", *run.RecordsOut)})
	}

	keyWidth := 0
	for _, p := range pairs {
		if len(p[0]) > keyWidth {
			keyWidth = len(p[0])
		}
	}

	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintln(w, "DEMO SUMMARY")
	fmt.Fprintln(w, strings.Repeat("-", width))
	for _, p := range pairs {
		fmt.Fprintf(w, "%*s : %s\n", keyWidth, p[0], p[1])
	}
	fmt.Fprintln(w, strings.Repeat("=", width))
}

func init() {
	rootCmd.AddCommand(demoCmd)
}
