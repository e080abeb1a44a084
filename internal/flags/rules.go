package flags

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RuleFn evaluates one rule against a record. A nil result means the rule
// did not fire.
type RuleFn func(r Record, now time.Time) *Flag

// nullish is the rule-set's own fixed null-literal set. It is deliberately
// narrower than the cleaning pipeline's: blank strings are caught by the
// emptiness check instead.
var nullish = map[string]struct{}{
	"null": {}, "none": {}, "na": {}, "n/a": {}, "nil": {}, "-": {},
}

func isNullish(s string) bool {
	_, ok := nullish[strings.ToLower(s)]
	return ok
}

var eventTimeLayouts = []string{
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04-07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// getEventTime parses the record's event time leniently; failure is a rule
// outcome here, not an error. Naive timestamps are assumed UTC.
func getEventTime(r Record) (time.Time, bool) {
	s := strings.TrimSpace(r.EventTime)
	if s == "" {
		return time.Time{}, false
	}
	if strings.HasSuffix(s, "Z") {
		s = s[:len(s)-1] + "+00:00"
	}
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseValueFloat(r Record) (float64, bool) {
	s := strings.TrimSpace(r.Value)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func ruleValueEmptyOrNullish(r Record, _ time.Time) *Flag {
	s := strings.TrimSpace(r.Value)
	if s == "" || isNullish(s) {
		return &Flag{
			Code:    "VALUE_EMPTY_OR_NULLISH",
			Weight:  40,
			Message: fmt.Sprintf("value='%s' is empty or null-ish", s),
		}
	}
	return nil
}

func ruleValueNotNumeric(r Record, _ time.Time) *Flag {
	s := strings.TrimSpace(r.Value)
	if s == "" || isNullish(s) {
		return nil // handled by VALUE_EMPTY_OR_NULLISH
	}
	if _, ok := parseValueFloat(r); !ok {
		return &Flag{
			Code:    "VALUE_NOT_NUMERIC",
			Weight:  40,
			Message: fmt.Sprintf("value='%s' cannot be parsed as float", s),
		}
	}
	return nil
}

func ruleFutureEventTime(r Record, now time.Time) *Flag {
	eventTime, ok := getEventTime(r)
	if !ok {
		return &Flag{
			Code:    "EVENT_TIME_INVALID",
			Weight:  40,
			Message: "event_time could not be parsed",
		}
	}
	if eventTime.After(now.Add(5 * time.Minute)) {
		return &Flag{
			Code:   "FUTURE_EVENT_TIME",
			Weight: 25,
			Message: fmt.Sprintf("event_time=%s is in the future vs now=%s",
				eventTime.Format("2006-01-02T15:04:05-07:00"),
				now.UTC().Format("2006-01-02T15:04:05-07:00")),
		}
	}
	return nil
}

func ruleStaleEventTime(r Record, now time.Time) *Flag {
	eventTime, ok := getEventTime(r)
	if !ok {
		return nil // handled by EVENT_TIME_INVALID
	}
	if eventTime.Before(now.Add(-30 * 24 * time.Hour)) {
		return &Flag{
			Code:    "STALE_EVENT_TIME",
			Weight:  15,
			Message: fmt.Sprintf("event_time=%s is older than 30 days", eventTime.Format("2006-01-02")),
		}
	}
	return nil
}

func ruleValueOutOfRange(r Record, _ time.Time) *Flag {
	x, ok := parseValueFloat(r)
	if !ok {
		return nil // empty/non-numeric handled elsewhere
	}
	if x <= 0 {
		return &Flag{
			Code:    "VALUE_OUT_OF_RANGE",
			Weight:  35,
			Message: fmt.Sprintf("value=%s must be > 0", strconv.FormatFloat(x, 'g', -1, 64)),
		}
	}
	if x > 1_000_000 {
		return &Flag{
			Code:    "VALUE_OUT_OF_RANGE",
			Weight:  35,
			Message: fmt.Sprintf("value=%s exceeds 1,000,000", strconv.FormatFloat(x, 'g', -1, 64)),
		}
	}
	return nil
}

// Rules returns the rule set in its fixed evaluation order. Order matters
// for stable flag_codes output.
func Rules() []RuleFn {
	return []RuleFn{
		ruleValueEmptyOrNullish,
		ruleValueNotNumeric,
		ruleFutureEventTime,
		ruleStaleEventTime,
		ruleValueOutOfRange,
	}
}

// fingerprintOf builds the batch-duplicate fingerprint from the fields as
// given, without any normalization.
func fingerprintOf(r Record) string {
	return strings.Join([]string{r.Source, r.SourceID, r.EventTime, r.Category, r.Value}, "\x1f")
}
