package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// RequiredColumns must all be present in a file's header row. Validation
// failure names the missing columns and fails the whole file.
var RequiredColumns = []string{"source_id", "event_time", "value", "category"}

// NamedFile pairs an uploaded filename with its raw bytes.
type NamedFile struct {
	Name string
	Data []byte
}

// ParseFile parses one uploaded file into ordered field-name -> raw-value
// rows. Format is detected by extension: .csv is delimited text with a
// header row, .xlsx is the first sheet of a workbook (values only, header =
// first row). Anything else fails immediately.
func ParseFile(name string, data []byte) ([]map[string]any, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return parseCSV(name, data)
	case strings.HasSuffix(lower, ".xlsx"):
		return parseXLSX(name, data)
	default:
		return nil, validationf("unsupported file type: %s", name)
	}
}

func parseCSV(name string, data []byte) ([]map[string]any, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	header, err := reader.Read()
	if err == io.EOF {
		return nil, validationf("%s: missing required columns: %s", name, strings.Join(RequiredColumns, ", "))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s: read csv header", name)
	}
	if err := validateHeader(name, header); err != nil {
		return nil, err
	}

	var rows []map[string]any
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: %s: read csv row", name)
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseXLSX(name string, data []byte) ([]map[string]any, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: %s: open xlsx", name)
	}
	if len(f.Sheets) == 0 {
		return nil, validationf("%s: workbook has no sheets", name)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, validationf("%s: missing required columns: %s", name, strings.Join(RequiredColumns, ", "))
	}

	header := make([]string, len(sheet.Rows[0].Cells))
	for i, cell := range sheet.Rows[0].Cells {
		header[i] = strings.TrimSpace(cell.String())
	}
	if err := validateHeader(name, header); err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, r := range sheet.Rows[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(r.Cells) {
				row[col] = r.Cells[i].String()
			} else {
				row[col] = nil
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// validateHeader fails on the first file whose header is missing any
// required column, naming every missing column at once.
func validateHeader(name string, header []string) error {
	present := make(map[string]struct{}, len(header))
	for _, h := range header {
		present[h] = struct{}{}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return validationf("%s: missing required columns: %s", name, strings.Join(missing, ", "))
	}
	return nil
}
