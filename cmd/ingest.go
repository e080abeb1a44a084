package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/datapipe-cli/internal/ingest"
)

var ingestSource string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest CSV/XLSX files into the raw record store",
	Long:  "Parses the given files, computes content hashes, and bulk-inserts raw records. Re-ingesting identical content is a no-op (rows are deduped, not duplicated).",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "ingest")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		source := ingestSource
		if source == "" {
			source = cfg.Ingest.DefaultSource
		}

		files := make([]ingest.NamedFile, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return eris.Wrapf(err, "read input file %s", path)
			}
			files = append(files, ingest.NamedFile{Name: path, Data: data})
		}

		res, err := ingest.NewService(st).IngestFiles(ctx, source, files)
		if err != nil {
			return err
		}

		fmt.Printf("Run %s: parsed %d, inserted %d, deduped %d\n",
			res.RunID, res.TotalRecords, res.InsertedRecords, res.DedupedRecords)
		for _, pf := range res.PerFile {
			fmt.Printf("  %s: %d rows\n", pf.Name, pf.Rows)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source label for this feed (default from config)")
	rootCmd.AddCommand(ingestCmd)
}
