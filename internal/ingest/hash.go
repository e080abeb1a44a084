package ingest

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// RecordKeys holds the four canonical identity fields extracted from a raw
// payload plus the content hash computed over them. The hash is the dedupe
// key: identical semantic content always hashes identically, regardless of
// timestamp spelling or padding in the raw cells.
type RecordKeys struct {
	SourceID  string
	EventTime time.Time
	Category  string
	Value     string
	Hash      string
}

// eventTimeLayouts cover the timestamp spellings accepted for the required
// event_time column, down to minute precision. Fractional seconds are
// accepted by time.Parse on the seconds layouts; a trailing Z is rewritten
// to +00:00 before parsing.
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

// ParseEventTime parses the required event_time cell strictly. Unlike the
// cleaning normalizers this fails hard: a missing or malformed event time
// must never silently produce a wrong dedupe key. Timestamps without an
// explicit offset are assumed UTC; all results are normalized to UTC.
func ParseEventTime(v any) (time.Time, error) {
	if v == nil {
		return time.Time{}, validationf("event_time is required")
	}

	if t, ok := v.(time.Time); ok {
		return t.UTC(), nil
	}

	s := strings.TrimSpace(fmt.Sprintf("%v", v))
	if s == "" {
		return time.Time{}, validationf("event_time is required")
	}

	if strings.HasSuffix(s, "Z") {
		s = s[:len(s)-1] + "+00:00"
	}

	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, validationf("invalid event_time format: %q", v)
}

// canonicalEventTime renders a UTC timestamp the way the content hash
// expects it: seconds precision, microseconds only when nonzero, and an
// explicit +00:00 offset. This keeps "...Z" and "...+00:00" inputs on the
// same hash.
func canonicalEventTime(t time.Time) string {
	t = t.UTC()
	s := t.Format("2006-01-02T15:04:05")
	if us := t.Nanosecond() / 1000; us != 0 {
		s += fmt.Sprintf(".%06d", us)
	}
	return s + "+00:00"
}

// hashKey serializes with fields in alphabetical order; ContentHash depends
// on this ordering staying fixed.
type hashKey struct {
	Category  string `json:"category"`
	EventTime string `json:"event_time"`
	SourceID  string `json:"source_id"`
	Value     string `json:"value"`
}

// ContentHash computes the canonical content hash for a record: SHA-256 of
// the compact, sorted-key, ASCII-only JSON encoding of the four identity
// fields, lowercase hex. Downstream dedupe guarantees depend on this being
// bit-exact, so the encoding must never change.
func ContentHash(sourceID string, eventTime time.Time, category, value string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(hashKey{
		Category:  category,
		EventTime: canonicalEventTime(eventTime),
		SourceID:  sourceID,
		Value:     value,
	}); err != nil {
		return "", eris.Wrap(err, "ingest: encode hash key")
	}

	key := escapeNonASCII(bytes.TrimRight(buf.Bytes(), "\n"))
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:]), nil
}

// escapeNonASCII rewrites every rune above U+007F as a lowercase \uXXXX
// escape (a surrogate pair above U+FFFF) so the serialized key is pure
// ASCII. Records with accented identity fields must hash the same here as
// in every other system computing this key.
func escapeNonASCII(b []byte) []byte {
	ascii := true
	for _, c := range b {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return b
	}

	var out bytes.Buffer
	out.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		i += size
		if r < utf8.RuneSelf {
			out.WriteByte(byte(r))
			continue
		}
		if r > 0xFFFF {
			r -= 0x10000
			fmt.Fprintf(&out, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
			continue
		}
		fmt.Fprintf(&out, `\u%04x`, r)
	}
	return out.Bytes()
}

// ExtractKeys extracts and normalizes the identity fields from a parsed row
// and computes its content hash. source_id and value are trimmed, category
// is trimmed and lowercased, event_time must parse.
func ExtractKeys(payload map[string]any) (RecordKeys, error) {
	eventTime, err := ParseEventTime(payload["event_time"])
	if err != nil {
		return RecordKeys{}, err
	}

	keys := RecordKeys{
		SourceID:  normString(payload["source_id"]),
		EventTime: eventTime,
		Category:  strings.ToLower(normString(payload["category"])),
		Value:     normString(payload["value"]),
	}

	keys.Hash, err = ContentHash(keys.SourceID, keys.EventTime, keys.Category, keys.Value)
	if err != nil {
		return RecordKeys{}, err
	}
	return keys, nil
}

func normString(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
