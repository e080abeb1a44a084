package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNull(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"na upper", "NA", true},
		{"n/a", "n/a", true},
		{"none", "None", true},
		{"null", "NULL", true},
		{"dash", "-", true},
		{"double dash", "--", true},
		{"em dash", "—", true},
		{"zero string", "0", false},
		{"false string", "false", false},
		{"zero int", 0, false},
		{"false bool", false, false},
		{"text", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNull(tt.in))
		})
	}
}

func TestText(t *testing.T) {
	s, ok := Text("  Hello   big\t world ")
	require.True(t, ok)
	assert.Equal(t, "Hello big world", s)

	_, ok = Text("   ")
	assert.False(t, ok)

	_, ok = Text(nil)
	assert.False(t, ok)
}

func TestCategory(t *testing.T) {
	mapping := map[string]string{"tech": "technology", "fin": "finance"}

	got, ok := Category("  TECH ", mapping)
	require.True(t, ok)
	assert.Equal(t, "technology", got)

	// Unknown categories pass through cleaned, not rejected.
	got, ok = Category("  Gardening  ", mapping)
	require.True(t, ok)
	assert.Equal(t, "Gardening", got)

	_, ok = Category("n/a", mapping)
	assert.False(t, ok)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDate(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		dayFirst bool
		want     time.Time
		ok       bool
	}{
		{"iso", "2026-01-09", true, date(2026, 1, 9), true},
		{"iso ignores day first", "2026-01-09", false, date(2026, 1, 9), true},
		{"iso datetime", "2026-01-09T12:30:00", true, date(2026, 1, 9), true},
		{"slash year first", "2026/01/09", true, date(2026, 1, 9), true},
		{"ambiguous day first", "01/09/2026", true, date(2026, 9, 1), true},
		{"ambiguous month first", "01/09/2026", false, date(2026, 1, 9), true},
		{"dash day first", "09-01-2026", true, date(2026, 1, 9), true},
		{"iso unpadded", "2026-1-9", true, date(2026, 1, 9), true},
		{"space datetime", "2026-01-09 12:30:00", true, date(2026, 1, 9), true},
		{"garbage", "not a date", true, time.Time{}, false},
		{"impossible slash", "13/13/2026", true, time.Time{}, false},
		{"null", "n/a", true, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Date(tt.in, tt.dayFirst)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCurrency(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"us style", "$1,234.56", "1234.56", true},
		{"eu style", "€1.234,56", "1234.56", true},
		{"plain", "42", "42", true},
		{"negative", "-3.50", "-3.5", true},
		{"thousands only", "1,234,567", "1234567", true},
		{"garbage", "abc", "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Currency(tt.in)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				want, err := decimal.NewFromString(tt.want)
				require.NoError(t, err)
				assert.True(t, want.Equal(got), "got %s want %s", got, want)
			}
		})
	}
}

func TestCurrencyExactness(t *testing.T) {
	// Exact fixed-point: no float rounding artifacts on cent values.
	got, ok := Currency("0.10")
	require.True(t, ok)
	assert.Equal(t, "0.1", got.String())

	sum := decimal.Zero
	tenth, _ := Currency("0.10")
	for i := 0; i < 10; i++ {
		sum = sum.Add(tenth)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)))
}

func TestInt(t *testing.T) {
	got, ok := Int("1,234")
	require.True(t, ok)
	assert.Equal(t, int64(1234), got)

	got, ok = Int("99.9")
	require.True(t, ok)
	assert.Equal(t, int64(99), got)

	_, ok = Int(true)
	assert.False(t, ok, "booleans must not coerce to integers")

	_, ok = Int("abc")
	assert.False(t, ok)
}

func TestFloat(t *testing.T) {
	got, ok := Float("1,234.5")
	require.True(t, ok)
	assert.Equal(t, 1234.5, got)

	_, ok = Float(false)
	assert.False(t, ok, "booleans must not coerce to floats")

	_, ok = Float("")
	assert.False(t, ok)
}

func ptr(f float64) *float64 { return &f }

func TestOutlierRule(t *testing.T) {
	rule := OutlierRule{Min: ptr(0), Max: ptr(100)}

	assert.True(t, rule.InRange(50))
	assert.True(t, rule.InRange(0), "boundary values pass")
	assert.True(t, rule.InRange(100), "boundary values pass")
	assert.False(t, rule.InRange(-0.01))
	assert.False(t, rule.InRange(100.01))

	openLow := OutlierRule{Max: ptr(10)}
	assert.True(t, openLow.InRange(-1e9))
	assert.False(t, openLow.InRange(11))

	unbounded := OutlierRule{}
	assert.True(t, unbounded.InRange(1e18))
}
