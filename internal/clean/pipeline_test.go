package clean

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapipe-cli/internal/normalize"
)

func TestCleanRow_NullLiterals(t *testing.T) {
	row := map[string]any{
		"a": "null", "b": "N/A", "c": "--", "d": "-", "e": "  ", "f": "keep",
	}
	out := CleanRow(row, Config{})
	assert.Nil(t, out["a"])
	assert.Nil(t, out["b"])
	assert.Nil(t, out["c"])
	assert.Nil(t, out["d"])
	assert.Nil(t, out["e"])
	assert.Equal(t, "keep", out["f"])
}

func TestCleanRow_AllowListDropsUnknownFields(t *testing.T) {
	row := map[string]any{"title": "x", "internal_note": "secret"}
	out := CleanRow(row, Config{AllowedFields: []string{"title"}})
	assert.Contains(t, out, "title")
	assert.NotContains(t, out, "internal_note")
}

func TestCleanRow_TitleCollapsesWhitespace(t *testing.T) {
	out := CleanRow(map[string]any{"title": "  Hello   World  "}, Config{})
	assert.Equal(t, "Hello World", out["title"])
}

func TestCleanRow_CategoryMapping(t *testing.T) {
	cfg := Config{CategoryMapping: map[string]string{"tech": "technology"}}

	out := CleanRow(map[string]any{"category": " Tech "}, cfg)
	assert.Equal(t, "technology", out["category"])

	// Unknown categories pass through cleaned, not dropped.
	out = CleanRow(map[string]any{"category": " Gardening "}, cfg)
	assert.Equal(t, "gardening", out["category"])
}

func TestCleanRow_DateFields(t *testing.T) {
	out := CleanRow(map[string]any{"published_at": "2024-03-05T10:30:00"}, Config{})
	assert.Equal(t, "2024-03-05", out["published_at"])

	// Ambiguous slash date honors day_first.
	out = CleanRow(map[string]any{"created_at": "01/09/2026"}, Config{DayFirst: true})
	assert.Equal(t, "2026-09-01", out["created_at"])
	out = CleanRow(map[string]any{"created_at": "01/09/2026"}, Config{DayFirst: false})
	assert.Equal(t, "2026-01-09", out["created_at"])

	out = CleanRow(map[string]any{"published_at": "not a date"}, Config{})
	assert.Nil(t, out["published_at"])
}

func TestCleanRow_CurrencyFields(t *testing.T) {
	out := CleanRow(map[string]any{"price": "$1,234.56", "revenue": "abc"}, Config{})
	price, ok := out["price"].(decimal.Decimal)
	require.True(t, ok, "price should be a decimal, got %T", out["price"])
	assert.Equal(t, "1234.56", price.String())
	assert.Nil(t, out["revenue"])
}

func TestCleanRow_ViewsAndScore(t *testing.T) {
	out := CleanRow(map[string]any{"views": "1,000", "score": "4.5"}, Config{})
	assert.Equal(t, int64(1000), out["views"])
	assert.Equal(t, 4.5, out["score"])

	out = CleanRow(map[string]any{"views": "many", "score": true}, Config{})
	assert.Nil(t, out["views"])
	assert.Nil(t, out["score"])
}

func TestCleanRow_OutlierRules(t *testing.T) {
	minV, maxV := 0.0, 1000.0
	cfg := Config{OutlierRules: map[string]normalize.OutlierRule{
		"views": {Min: &minV, Max: &maxV},
		"price": {Min: &minV, Max: &maxV},
	}}

	out := CleanRow(map[string]any{"views": "500"}, cfg)
	assert.Equal(t, int64(500), out["views"])

	out = CleanRow(map[string]any{"views": "5000"}, cfg)
	assert.Nil(t, out["views"])

	// Exact decimals under a guardrail come out as float64.
	out = CleanRow(map[string]any{"price": "$500.25"}, cfg)
	assert.Equal(t, 500.25, out["price"])

	// Non-numeric values under a guardrail resolve to no-value.
	out = CleanRow(map[string]any{"price": "free"}, cfg)
	assert.Nil(t, out["price"])
}

func TestCleanRow_RowsAreIndependent(t *testing.T) {
	rows := []map[string]any{
		{"title": " a "},
		{"title": "null"},
	}
	out := CleanRows(rows, Config{})
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0]["title"])
	assert.Nil(t, out[1]["title"])
}
