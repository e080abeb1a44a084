// Package model defines the persistence models shared across the pipeline.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRecord is one ingested row, stored append-only. The pair
// (Source, RecordHash) is globally unique: re-ingesting identical semantic
// content never creates a second copy.
type RawRecord struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	Source     string    `json:"source"`
	RecordHash string    `json:"record_hash"`
	SourceID   string    `json:"source_id"`
	EventTime  time.Time `json:"event_time"`
	Category   string    `json:"category"`
	Value      string    `json:"value"`

	RowNum     int            `json:"row_num"`
	Payload    map[string]any `json:"payload"`
	IngestedAt time.Time      `json:"ingested_at"`
}

// CleanRecord is the normalized projection of a RawRecord. It shares the
// (Source, RecordHash) uniqueness constraint; re-cleaning the same raw
// content overwrites the non-key columns instead of duplicating the row.
type CleanRecord struct {
	ID    string `json:"id"`
	RawID string `json:"raw_id"`
	RunID string `json:"run_id"`

	Source     string    `json:"source"`
	RecordHash string    `json:"record_hash"`
	SourceID   string    `json:"source_id"`
	EventTime  time.Time `json:"event_time"`

	Category     *string          `json:"category,omitempty"`
	ValueText    *string          `json:"value_text,omitempty"`
	ValueDecimal *decimal.Decimal `json:"value_decimal,omitempty"`

	PayloadClean map[string]any `json:"payload_clean"`
	CleanedAt    time.Time      `json:"cleaned_at"`
}
