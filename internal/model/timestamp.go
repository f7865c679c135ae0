package model

import (
	"strings"
	"time"
)

// TimestampLayout is RFC 3339 with a fixed nine-digit fraction, so stored
// timestamps sort the same as text and as time.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// CompareTimestamps orders two stored timestamps by the instant they name.
// Either layout RFC 3339 allows is accepted, including fractions with the
// trailing zeros trimmed. When either side does not parse the strings are
// compared as text.
func CompareTimestamps(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	return ta.Compare(tb)
}
