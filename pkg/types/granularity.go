package types

import (
	"fmt"
	"time"
)

// Granularity is the period size of a history series. It determines both the
// timestamp layout and the calendar arithmetic used to find the previous
// period.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// ParseGranularity validates a granularity name. The empty string defaults to
// day.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return GranularityDay, nil
	case GranularityDay, GranularityMonth, GranularityYear:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("unknown granularity: %s", s)
	}
}

// GranularityFromTimestamp infers the granularity from the length of a
// timestamp key.
func GranularityFromTimestamp(ts string) (Granularity, bool) {
	switch len(ts) {
	case 8:
		return GranularityDay, true
	case 6:
		return GranularityMonth, true
	case 4:
		return GranularityYear, true
	default:
		return "", false
	}
}

// Layout returns the time layout for timestamp keys of this granularity.
func (g Granularity) Layout() string {
	switch g {
	case GranularityMonth:
		return "200601"
	case GranularityYear:
		return "2006"
	default:
		return "20060102"
	}
}

// DisplayLayout returns the human readable layout used for record dates.
func (g Granularity) DisplayLayout() string {
	switch g {
	case GranularityMonth:
		return "2006-01"
	case GranularityYear:
		return "2006"
	default:
		return "2006-01-02"
	}
}

// DataType is the upstream history data_type code for this granularity.
func (g Granularity) DataType() string {
	switch g {
	case GranularityMonth:
		return "3"
	case GranularityYear:
		return "4"
	default:
		return "2"
	}
}

// Parse parses a timestamp key as the first instant of its period in UTC.
func (g Granularity) Parse(ts string) (time.Time, error) {
	return time.ParseInLocation(g.Layout(), ts, time.UTC)
}

// Format formats t as a timestamp key.
func (g Granularity) Format(t time.Time) string {
	return t.Format(g.Layout())
}

// Previous returns the timestamp key of the period immediately before ts.
// Periods are parsed as the first day of the period so month arithmetic never
// overflows into the following month.
func (g Granularity) Previous(ts string) (string, bool) {
	t, err := g.Parse(ts)
	if err != nil {
		return "", false
	}
	return g.Format(g.add(t, -1)), true
}

// Next returns the timestamp key of the period immediately after ts.
func (g Granularity) Next(ts string) (string, bool) {
	t, err := g.Parse(ts)
	if err != nil {
		return "", false
	}
	return g.Format(g.add(t, 1)), true
}

// Display converts a timestamp key into a readable date, falling back to the
// raw key when it cannot be parsed.
func (g Granularity) Display(ts string) string {
	t, err := g.Parse(ts)
	if err != nil {
		return ts
	}
	return t.Format(g.DisplayLayout())
}

// Truncate returns the start of the period containing t.
func (g Granularity) Truncate(t time.Time) time.Time {
	switch g {
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	case GranularityYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
}

func (g Granularity) add(t time.Time, n int) time.Time {
	switch g {
	case GranularityMonth:
		return t.AddDate(0, n, 0)
	case GranularityYear:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}
