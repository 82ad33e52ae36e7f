package utils

import "time"

// FormatTimestamp renders t in UTC RFC3339. Every timestamp that ends up in a
// sort key goes through here so keys stay fixed-width and order lexically.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTimestamp parses a time string in RFC3339 format
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
