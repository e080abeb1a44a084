// Package ingest parses uploaded tabular files and performs the idempotent
// raw-record upsert pipeline.
package ingest

import "fmt"

// ValidationError marks problems with caller-supplied input: missing
// required columns, unsupported file types, unparseable required
// timestamps. These are surfaced immediately and never coerced.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
