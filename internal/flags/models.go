// Package flags scores ingested records against a fixed, ordered rule set
// and produces an explainable quality report.
package flags

import "strings"

// Flag is one rule hit on a record.
type Flag struct {
	Code    string `json:"code"`
	Weight  int    `json:"weight"`
	Message string `json:"message"`
}

// Record is the flat view of a raw record that the rules evaluate.
// EventTime and IngestedAt stay as the stored text so an unparseable
// event time can itself be flagged.
type Record struct {
	ID         string `json:"id"`
	RunID      string `json:"run_id"`
	RowNum     int    `json:"row_num"`
	Source     string `json:"source"`
	SourceID   string `json:"source_id"`
	Category   string `json:"category"`
	EventTime  string `json:"event_time"`
	Value      string `json:"value"`
	RecordHash string `json:"record_hash"`
	IngestedAt string `json:"ingested_at"`
}

// FlaggedRecord is a record with at least one rule hit. Severity is the
// capped sum of the hit weights.
type FlaggedRecord struct {
	Record   Record `json:"record"`
	Severity int    `json:"severity"`
	Flags    []Flag `json:"flags"`
}

// FlagCodes joins the hit codes with "|", in rule order.
func (fr FlaggedRecord) FlagCodes() string {
	codes := make([]string, len(fr.Flags))
	for i, f := range fr.Flags {
		codes[i] = f.Code
	}
	return strings.Join(codes, "|")
}

// FlagMessages joins "CODE: message" pairs with " || ", in rule order.
func (fr FlaggedRecord) FlagMessages() string {
	msgs := make([]string, len(fr.Flags))
	for i, f := range fr.Flags {
		msgs[i] = f.Code + ": " + f.Message
	}
	return strings.Join(msgs, " || ")
}
