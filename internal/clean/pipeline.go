// Package clean applies the deterministic cleaning pipeline to raw record
// payloads and maintains the clean_records projection.
package clean

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/datapipe-cli/internal/normalize"
)

// Config controls how a row is cleaned. The zero value keeps every field and
// applies only null normalization plus the fixed field bindings.
type Config struct {
	// AllowedFields, when non-empty, is an allow-list: unlisted fields are
	// dropped outright before any normalization.
	AllowedFields []string `yaml:"allowed_fields"`

	// DayFirst resolves ambiguous slash dates like 01/09/2026.
	DayFirst bool `yaml:"day_first"`

	// CategoryMapping maps lowercased, trimmed raw categories to canonical
	// names. Unknown categories pass through cleaned.
	CategoryMapping map[string]string `yaml:"category_mapping"`

	// OutlierRules are applied per field after numeric normalization.
	OutlierRules map[string]normalize.OutlierRule `yaml:"outlier_rules"`
}

// DateLayout is how cleaned calendar dates are rendered in payloads.
const DateLayout = "2006-01-02"

// CleanRow cleans a single row: drop disallowed fields, nil out null
// literals, run the per-field normalizers, then apply outlier guardrails.
// Rows are independent; there is no cross-row state.
func CleanRow(row map[string]any, cfg Config) map[string]any {
	out := stripUnknownFields(row, cfg.AllowedFields)

	for k, v := range out {
		if normalize.IsNull(v) {
			out[k] = nil
		}
	}

	// Fixed field -> normalizer bindings by conventional field name.
	// Fields outside this table only get null normalization above.
	if v, present := out["title"]; present {
		out["title"] = orNil(normalize.Text(v))
	}
	if v, present := out["category"]; present {
		out["category"] = orNil(normalize.Category(v, cfg.CategoryMapping))
	}
	for _, field := range []string{"published_at", "created_at"} {
		if v, present := out[field]; present {
			if d, ok := normalize.Date(v, cfg.DayFirst); ok {
				out[field] = d.Format(DateLayout)
			} else {
				out[field] = nil
			}
		}
	}
	for _, field := range []string{"price", "revenue"} {
		if v, present := out[field]; present {
			out[field] = orNil(normalize.Currency(v))
		}
	}
	if v, present := out["views"]; present {
		out["views"] = orNil(normalize.Int(v))
	}
	if v, present := out["score"]; present {
		out["score"] = orNil(normalize.Float(v))
	}

	for field, rule := range cfg.OutlierRules {
		v, present := out[field]
		if !present {
			continue
		}
		out[field] = applyOutlierRule(rule, v)
	}

	return out
}

// CleanRows cleans a batch row by row.
func CleanRows(rows []map[string]any, cfg Config) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = CleanRow(r, cfg)
	}
	return out
}

// applyOutlierRule checks a post-normalization value against a numeric
// guardrail. Exact decimals are compared through float64; anything that is
// not numeric after cleaning resolves to no-value rather than erroring.
func applyOutlierRule(rule normalize.OutlierRule, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		f, _ := x.Float64()
		if rule.InRange(f) {
			return f
		}
		return nil
	case int64:
		if rule.InRange(float64(x)) {
			return x
		}
		return nil
	case int:
		if rule.InRange(float64(x)) {
			return x
		}
		return nil
	case float64:
		if rule.InRange(x) {
			return x
		}
		return nil
	default:
		return nil
	}
}

func stripUnknownFields(row map[string]any, allowed []string) map[string]any {
	out := make(map[string]any, len(row))
	if len(allowed) == 0 {
		for k, v := range row {
			out[k] = v
		}
		return out
	}
	keep := make(map[string]struct{}, len(allowed))
	for _, k := range allowed {
		keep[k] = struct{}{}
	}
	for k, v := range row {
		if _, ok := keep[k]; ok {
			out[k] = v
		}
	}
	return out
}

func orNil[T any](v T, ok bool) any {
	if !ok {
		return nil
	}
	return v
}
