package model

import (
	"errors"
	"strings"
	"time"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// timestampLayouts are tried in order. The zone-less forms cover files
// written by earlier versions of the dashboard.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// ParseTimestamp parses the timestamp forms found in upstream payloads and
// persisted files. Zone-less values are read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}
