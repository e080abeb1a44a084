// Package normalize provides the deterministic field normalizers used by the
// cleaning pipeline. Every function is total: malformed input resolves to
// "no value" (ok == false), never an error.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// nullLiterals is the fixed set of tokens treated as "no value". Matching is
// case-insensitive after trimming, so " NA " and "—" are both null.
var nullLiterals = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"none": {},
	"null": {},
	"nil":  {},
	"-":    {},
	"--":   {},
	"—":    {},
}

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	currencyCleanRe = regexp.MustCompile(`[^\d,.\-]`)
	slashDateRe     = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
)

// IsNull reports whether a raw cell value carries no information. Zero and
// false are real values; only nil and the null-literal tokens are null.
func IsNull(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		_, null := nullLiterals[strings.ToLower(strings.TrimSpace(s))]
		return null
	}
	return false
}

// Text trims the value and collapses internal whitespace runs to single
// spaces. An empty result is "no value".
func Text(v any) (string, bool) {
	if IsNull(v) {
		return "", false
	}
	s := whitespaceRe.ReplaceAllString(strings.TrimSpace(stringify(v)), " ")
	if s == "" {
		return "", false
	}
	return s, true
}

// Category text-normalizes the value and maps it through the canonical
// category table. The lookup key is lowercased and trimmed; unknown
// categories pass through cleaned rather than being rejected.
func Category(v any, mapping map[string]string) (string, bool) {
	raw, ok := Text(v)
	if !ok {
		return "", false
	}
	if canonical, found := mapping[strings.ToLower(raw)]; found {
		return canonical, true
	}
	return raw, true
}

// dateLayouts are tried in order after the ISO fast path and the ambiguous
// slash-date case. Dash dates prefer day-first by layout order.
var dateLayouts = []string{
	"2006/1/2",
	"2/1/2006",
	"1/2/2006",
	"2-1-2006",
	"1-2-2006",
	"2006-1-2",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Date parses common date spellings to a UTC calendar date. Ambiguous
// D/M/Y vs M/D/Y slash dates are resolved by dayFirst and do not fall
// through to other layouts. Unparseable input is "no value".
func Date(v any, dayFirst bool) (time.Time, bool) {
	if IsNull(v) {
		return time.Time{}, false
	}

	if t, ok := v.(time.Time); ok {
		return truncateToDay(t), true
	}

	s := strings.TrimSpace(stringify(v))

	// Fast path: ISO date prefix (also handles ISO datetime strings).
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}

	if slashDateRe.MatchString(s) {
		layout := "1/2/2006"
		if dayFirst {
			layout = "2/1/2006"
		}
		t, err := time.Parse(layout, s)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateToDay(t), true
		}
	}

	return time.Time{}, false
}

// Currency parses a monetary string to an exact decimal. Currency symbols
// and spaces are stripped; both "1,234.56" and the European "1.234,56" are
// supported, detected by the rightmost separator positions.
func Currency(v any) (decimal.Decimal, bool) {
	if IsNull(v) {
		return decimal.Decimal{}, false
	}

	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	}

	s := currencyCleanRe.ReplaceAllString(strings.TrimSpace(stringify(v)), "")
	if s == "" {
		return decimal.Decimal{}, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	if strings.Count(s, ",") == 1 && strings.Count(s, ".") >= 1 && lastComma > lastDot {
		// European style: dots are thousands separators, comma is decimal.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else if strings.Count(s, ".") <= 1 {
		// US style: commas are thousands separators.
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Int coerces the value to an integer, stripping thousands commas and
// truncating through float parsing. Booleans are rejected so a stray
// true never becomes 1 silently.
func Int(v any) (int64, bool) {
	if IsNull(v) {
		return 0, false
	}
	switch x := v.(type) {
	case bool:
		return 0, false
	case int:
		return int64(x), true
	case int64:
		return x, true
	case float64:
		return int64(x), true
	}
	s, ok := Text(v)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// Float coerces the value to a float, stripping thousands commas.
// Booleans are rejected for the same reason as Int.
func Float(v any) (float64, bool) {
	if IsNull(v) {
		return 0, false
	}
	switch x := v.(type) {
	case bool:
		return 0, false
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	s, ok := Text(v)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// OutlierRule replaces numeric values outside the closed range [Min, Max]
// with "no value". Either bound may be nil; boundary values pass.
type OutlierRule struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// InRange reports whether v survives the guardrail.
func (r OutlierRule) InRange(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
