// Package ingest turns raw API video payloads into persistable records:
// it parses ISO-8601 durations, classifies content as short or long form,
// and normalizes optional fields with explicit presence indicators.
package ingest

import (
	"fmt"

	"github.com/L0rd008/ViewTrendsSL-sub002/internal/db/models"
)

// ShortMaxSeconds is the inclusive upper bound for short-form content.
// The platform caps Shorts at just over a minute, so 61 is still short
// and 62 is long form.
const ShortMaxSeconds = 61

// ParseDuration parses an ISO-8601 duration of the shape PT#H#M#S,
// also accepting a leading day component (P#DT...). It returns the total
// seconds and a degraded flag. A malformed string returns an error and
// degraded=true; a valid string totalling zero seconds (live or upcoming
// entries report PT0S or P0D) returns degraded=true without an error.
// Degraded durations classify as long form and are flagged on the record.
func ParseDuration(raw string) (int, bool, error) {
	if len(raw) < 3 || raw[0] != 'P' {
		return 0, true, fmt.Errorf("malformed duration %q", raw)
	}

	total := 0
	num := 0
	haveDigits := false
	haveComponent := false
	inTime := false

	for i := 1; i < len(raw); i++ {
		c := raw[i]

		if c >= '0' && c <= '9' {
			num = num*10 + int(c-'0')
			haveDigits = true
			continue
		}

		if c == 'T' {
			if haveDigits || inTime {
				return 0, true, fmt.Errorf("malformed duration %q", raw)
			}
			inTime = true
			continue
		}

		if !haveDigits {
			return 0, true, fmt.Errorf("malformed duration %q", raw)
		}

		switch {
		case c == 'D' && !inTime:
			total += num * 86400
		case c == 'H' && inTime:
			total += num * 3600
		case c == 'M' && inTime:
			total += num * 60
		case c == 'S' && inTime:
			total += num
		default:
			return 0, true, fmt.Errorf("unsupported designator %q in duration %q", string(c), raw)
		}

		num = 0
		haveDigits = false
		haveComponent = true
	}

	if haveDigits || !haveComponent {
		return 0, true, fmt.Errorf("malformed duration %q", raw)
	}

	if total == 0 {
		return 0, true, nil
	}

	return total, false, nil
}

// FormatDuration renders seconds back into the PT#H#M#S shape produced
// by the platform.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "PT0S"
	}

	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	out := "PT"
	if h > 0 {
		out += fmt.Sprintf("%dH", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dM", m)
	}
	if s > 0 {
		out += fmt.Sprintf("%dS", s)
	}

	return out
}

// Classify maps a parsed duration to a content type. Degraded durations
// fall back to long form so an unparseable value can never inflate the
// short-form cohort used for model training.
func Classify(seconds int, degraded bool) string {
	if degraded {
		return models.ContentTypeLong
	}
	if seconds >= 1 && seconds <= ShortMaxSeconds {
		return models.ContentTypeShort
	}
	return models.ContentTypeLong
}
