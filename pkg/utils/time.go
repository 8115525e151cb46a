package utils

import "time"

// NowUTC returns the current time in UTC. All session timestamps and export
// filenames use UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatTimestampUTC formats a time for display, e.g. "2026-08-29 14:03:05 UTC".
func FormatTimestampUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}

// FileStamp formats a time for embedding in filenames, e.g. "20260829_140305".
func FileStamp(t time.Time) string {
	return t.UTC().Format("20060102_150405")
}
