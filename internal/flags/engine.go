package flags

import (
	"fmt"
	"sort"
	"time"
)

// FlagRecords evaluates every record against the fixed rule set plus the
// batch duplicate-fingerprint check. Records with no hits are excluded.
// Severity is min(100, sum of weights). The result is ordered by severity
// descending, then record ID ascending; the sort is stable so equal keys
// keep input order.
func FlagRecords(records []Record, now time.Time) []FlaggedRecord {
	rules := Rules()

	fpCounts := make(map[string]int, len(records))
	for _, r := range records {
		fpCounts[fingerprintOf(r)]++
	}

	var flagged []FlaggedRecord
	for _, r := range records {
		var hits []Flag
		for _, rule := range rules {
			if f := rule(r, now); f != nil {
				hits = append(hits, *f)
			}
		}

		if n := fpCounts[fingerprintOf(r)]; n > 1 {
			hits = append(hits, Flag{
				Code:    "POSSIBLE_DUPLICATE_FINGERPRINT",
				Weight:  30,
				Message: fmt.Sprintf("Fingerprint appears %d times in this batch", n),
			})
		}

		if len(hits) == 0 {
			continue
		}
		severity := 0
		for _, f := range hits {
			severity += f.Weight
		}
		if severity > 100 {
			severity = 100
		}
		flagged = append(flagged, FlaggedRecord{Record: r, Severity: severity, Flags: hits})
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		if flagged[i].Severity != flagged[j].Severity {
			return flagged[i].Severity > flagged[j].Severity
		}
		return flagged[i].Record.ID < flagged[j].Record.ID
	})
	return flagged
}
