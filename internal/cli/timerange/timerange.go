// Package timerange parses the time window flags of the CLI.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Options holds the raw flag values. All fields are optional.
type Options struct {
	Since string // relative, e.g. "15m", "24h", "7d"
	From  string // absolute start
	To    string // absolute end
}

// Parse resolves opts against now. A zero time means the bound is open.
// Since and From are mutually exclusive.
func Parse(opts Options, now time.Time) (from, to time.Time, err error) {
	if opts.Since != "" && opts.From != "" {
		return time.Time{}, time.Time{}, fmt.Errorf("use either --since or --from, not both")
	}

	if opts.To != "" {
		if to, err = parseTime(opts.To, now); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'to' time: %w", err)
		}
	}

	switch {
	case opts.From != "":
		if from, err = parseTime(opts.From, now); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'from' time: %w", err)
		}
	case opts.Since != "":
		d, err := ParseDuration(opts.Since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'since' duration: %w", err)
		}
		end := to
		if end.IsZero() {
			end = now
		}
		from = end.Add(-d)
	}

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}
	return from, to, nil
}

var layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(s string, now time.Time) (time.Time, error) {
	if strings.EqualFold(s, "now") {
		return now, nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

var durationRegex = regexp.MustCompile(`^(\d+)(d|w)$`)

// ParseDuration parses a Go duration, extended with days ("7d") and weeks ("2w").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("duration must be positive: %s", s)
		}
		return d, nil
	}

	m := durationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid duration format: %s (examples: 15m, 1h, 24h, 7d)", s)
	}
	n, _ := strconv.Atoi(m[1])
	if n == 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	day := 24 * time.Hour
	if m[2] == "w" {
		return time.Duration(n) * 7 * day, nil
	}
	return time.Duration(n) * day, nil
}

// Ago formats the distance between t and now, e.g. "5m ago".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	suffix := "ago"
	if d < 0 {
		d = -d
		suffix = "from now"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds %s", int(d.Seconds()), suffix)
	case d < time.Hour:
		return fmt.Sprintf("%dm %s", int(d.Minutes()), suffix)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %s", int(d.Hours()), suffix)
	default:
		return fmt.Sprintf("%dd %s", int(d.Hours()/24), suffix)
	}
}
