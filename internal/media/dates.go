// Wizarr - Media Server Invitation and User Provisioning
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wizarr

package media

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// millisecondThreshold separates epoch seconds from epoch milliseconds.
// 1e10 seconds is in the year 2286.
const millisecondThreshold = 1e10

// maxMilliseconds bounds millisecond input to the same year.
const maxMilliseconds = millisecondThreshold * 1000

// isoLayouts are tried in order. time.Parse accepts any fraction length for
// the .999999999 forms, which covers Jellyfin's 7-digit ticks.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseISODate parses the ISO-8601 variants media servers emit and returns
// nil for empty or unparseable input. Values without a zone are UTC.
func ParseISODate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// ParseTimestamp parses an epoch timestamp in seconds or milliseconds.
// Numbers above 1e10 are milliseconds. Non-positive, non-finite, out of
// range or non-numeric input returns nil.
func ParseTimestamp(v any) *time.Time {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case interface{ Float64() (float64, error) }:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f > maxMilliseconds {
		return nil
	}

	var t time.Time
	if f > millisecondThreshold {
		t = time.UnixMilli(int64(f)).UTC()
	} else {
		sec := int64(f)
		t = time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	}
	return &t
}
