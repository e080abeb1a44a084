package flags

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
)

// reportColumns is the flag report's fixed column layout.
var reportColumns = []string{
	"id",
	"run_id",
	"row_num",
	"source",
	"source_id",
	"category",
	"event_time",
	"value",
	"record_hash",
	"ingested_at",
	"severity",
	"flag_codes",
	"flag_messages",
}

// WriteReportCSV writes the flagged records to a CSV report, creating parent
// directories as needed.
func WriteReportCSV(flagged []FlaggedRecord, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "flags: create report dir %s", dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "flags: create report file %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reportColumns); err != nil {
		return eris.Wrap(err, "flags: write report header")
	}
	for _, fr := range flagged {
		r := fr.Record
		row := []string{
			r.ID,
			r.RunID,
			strconv.Itoa(r.RowNum),
			r.Source,
			r.SourceID,
			r.Category,
			r.EventTime,
			r.Value,
			r.RecordHash,
			r.IngestedAt,
			strconv.Itoa(fr.Severity),
			fr.FlagCodes(),
			fr.FlagMessages(),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "flags: write report row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "flags: flush report")
	}
	return nil
}
