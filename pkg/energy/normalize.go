// Package energy converts cumulative energy readings into period production,
// growth and summary figures. Every view and export goes through this package
// so the conversion rules only live in one place.
package energy

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/solarledger/solarledger/pkg/types"
)

// NormalizeReport counts the data-quality issues found while normalizing.
type NormalizeReport struct {
	Rows       int `json:"rows"`
	Skipped    int `json:"skipped"`
	Coerced    int `json:"coerced"`
	Duplicates int `json:"duplicates"`
}

// Normalize converts raw upstream rows into readings sorted by timestamp. The
// value column is discovered per row as the key that isn't time_stamp.
// Missing or unparseable values become 0, rows without a timestamp are
// skipped and duplicate timestamps keep the last occurrence.
func Normalize(rows []types.RawRow) ([]types.CumulativeReading, NormalizeReport) {
	return normalize(rows, "")
}

// NormalizeColumn is like Normalize but reads the given value column, only
// falling back to discovery for rows that don't have it.
func NormalizeColumn(rows []types.RawRow, column string) ([]types.CumulativeReading, NormalizeReport) {
	return normalize(rows, column)
}

func normalize(rows []types.RawRow, column string) ([]types.CumulativeReading, NormalizeReport) {
	report := NormalizeReport{Rows: len(rows)}
	if len(rows) == 0 {
		return []types.CumulativeReading{}, report
	}

	byTimestamp := make(map[string]int, len(rows))
	readings := make([]types.CumulativeReading, 0, len(rows))
	for _, row := range rows {
		ts := strings.TrimSpace(row[types.TimestampKey])
		if ts == "" {
			report.Skipped++
			continue
		}

		key := column
		if _, ok := row[key]; !ok {
			key = valueColumn(row)
		}
		wh, ok := parseWh(row[key])
		if key == "" || !ok {
			report.Coerced++
		}

		if i, exists := byTimestamp[ts]; exists {
			report.Duplicates++
			readings[i].CumulativeWh = wh
			continue
		}
		byTimestamp[ts] = len(readings)
		readings = append(readings, types.CumulativeReading{Timestamp: ts, CumulativeWh: wh})
	}

	sortReadings(readings)
	return readings, report
}

// valueColumn returns the lexicographically smallest key that isn't the
// timestamp key. Upstream rows carry exactly one.
func valueColumn(row types.RawRow) string {
	var key string
	for k := range row {
		if k == types.TimestampKey {
			continue
		}
		if key == "" || k < key {
			key = k
		}
	}
	return key
}

// parseWh parses a cumulative Wh value. Values that can't serve as a running
// total (unparseable, non-finite, negative) become 0 and report false.
func parseWh(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

func sortReadings(readings []types.CumulativeReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp < readings[j].Timestamp
	})
}
