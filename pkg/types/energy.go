package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// TimestampKey is the fixed key every upstream data row carries.
const TimestampKey = "time_stamp"

// RawRow is one untyped data row as returned by the upstream API. It always
// contains TimestampKey and one value column named after the requested point
// (e.g. "p2").
type RawRow map[string]string

// UnmarshalJSON accepts string, number, boolean and null values. Numbers are
// kept as their decimal text and null becomes the empty string.
func (r *RawRow) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	row := make(RawRow, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0 || bytes.Equal(v, []byte("null")):
			row[k] = ""
		case v[0] == '"':
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("invalid value for %s: %w", k, err)
			}
			row[k] = s
		default:
			row[k] = string(v)
		}
	}
	*r = row
	return nil
}

// CumulativeReading is one running-total energy reading reported by a device.
type CumulativeReading struct {
	Timestamp    string  `json:"timestamp"`
	CumulativeWh float64 `json:"cumulativeWh"`
}

// CumulativeKwh returns the reading in kWh at full precision.
func (r CumulativeReading) CumulativeKwh() float64 {
	return r.CumulativeWh / 1000
}

// PeriodRecord is the energy produced in one period, derived from consecutive
// cumulative readings.
type PeriodRecord struct {
	Timestamp            string   `json:"timestamp"`
	Date                 string   `json:"date"`
	CumulativeKwh        float64  `json:"cumulativeKwh"`
	PeriodProductionKwh  float64  `json:"periodProductionKwh"`
	GrowthPct            float64  `json:"growthPct"`
	RunningProductionKwh float64  `json:"runningProductionKwh"`
	IsFirstPeriod        bool     `json:"isFirstPeriod"`
	Clamped              bool     `json:"clamped,omitempty"`
	PriorTimestamp       string   `json:"priorTimestamp,omitempty"`
	CalculationNotes     []string `json:"calculationNotes,omitempty"`
}

// Rounded returns a copy with energy and growth figures rounded to 2 decimals
// for display. Never feed rounded records back into calculations.
func (p PeriodRecord) Rounded() PeriodRecord {
	p.CumulativeKwh = Round2(p.CumulativeKwh)
	p.PeriodProductionKwh = Round2(p.PeriodProductionKwh)
	p.GrowthPct = Round2(p.GrowthPct)
	p.RunningProductionKwh = Round2(p.RunningProductionKwh)
	return p
}

// Summary aggregates a series of period records.
type Summary struct {
	Count               int           `json:"count"`
	TotalProductionKwh  float64       `json:"totalProductionKwh"`
	AveragePerPeriodKwh float64       `json:"averagePerPeriodKwh"`
	PeakRecord          *PeriodRecord `json:"peakRecord,omitempty"`
	TroughRecord        *PeriodRecord `json:"troughRecord,omitempty"`
	OverallGrowthPct    float64       `json:"overallGrowthPct"`
	LatestCumulativeKwh float64       `json:"latestCumulativeKwh"`
	FirstTimestamp      string        `json:"firstTimestamp,omitempty"`
	LastTimestamp       string        `json:"lastTimestamp,omitempty"`
	ClampedPeriods      int           `json:"clampedPeriods"`
}

// Rounded returns a copy of the summary rounded for display.
func (s Summary) Rounded() Summary {
	s.TotalProductionKwh = Round2(s.TotalProductionKwh)
	s.AveragePerPeriodKwh = Round2(s.AveragePerPeriodKwh)
	s.OverallGrowthPct = Round2(s.OverallGrowthPct)
	s.LatestCumulativeKwh = Round2(s.LatestCumulativeKwh)
	if s.PeakRecord != nil {
		r := s.PeakRecord.Rounded()
		s.PeakRecord = &r
	}
	if s.TroughRecord != nil {
		r := s.TroughRecord.Rounded()
		s.TroughRecord = &r
	}
	return s
}

// ProductionReport is the response of a production query.
type ProductionReport struct {
	Device      string         `json:"device"`
	Point       string         `json:"point"`
	Granularity Granularity    `json:"granularity"`
	WindowStart string         `json:"windowStart"`
	WindowEnd   string         `json:"windowEnd"`
	Records     []PeriodRecord `json:"records"`
	Summary     Summary        `json:"summary"`
}

// Rounded returns a copy of the report with every figure rounded for display.
func (r ProductionReport) Rounded() ProductionReport {
	records := make([]PeriodRecord, len(r.Records))
	for i, rec := range r.Records {
		records[i] = rec.Rounded()
	}
	r.Records = records
	r.Summary = r.Summary.Rounded()
	return r
}

// Round2 rounds v to 2 decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
