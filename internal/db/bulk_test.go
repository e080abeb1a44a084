package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkWrite_EmptyRows(t *testing.T) {
	n, err := BulkWrite(nil, nil, BulkConfig{
		Table:        "raw_records",
		Columns:      []string{"id", "value"},
		ConflictKeys: []string{"id"},
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkWrite_NoColumns(t *testing.T) {
	_, err := BulkWrite(nil, nil, BulkConfig{
		Table:        "raw_records",
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkWrite_NoConflictKeys(t *testing.T) {
	_, err := BulkWrite(nil, nil, BulkConfig{
		Table:   "raw_records",
		Columns: []string{"id", "value"},
	}, [][]any{{1, "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"raw_records", `"raw_records"`},
		{"summary.daily_metrics", `"summary"."daily_metrics"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeTable(tt.input)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	result := quoteAndJoin([]string{"source", "record_hash"})
	assert.Equal(t, `"source", "record_hash"`, result)
}
