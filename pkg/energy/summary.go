package energy

import (
	"math"

	"github.com/solarledger/solarledger/pkg/types"
)

// GrowthPct returns the percentage change from prev to cur. Growth from 0 to
// any positive value is 100 and growth from 0 to 0 is 0.
func GrowthPct(prev, cur float64) float64 {
	switch {
	case prev > 0:
		g := (cur - prev) / prev * 100
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return 0
		}
		return g
	case cur > 0:
		return 100
	default:
		return 0
	}
}

// Summarize aggregates period records into totals, averages and extremes.
//
// OverallGrowthPct compares the production of the first record that had a
// preceding value to the last record with positive production. It is 0 when
// there are no such records or both are the same record.
func Summarize(records []types.PeriodRecord) types.Summary {
	var s types.Summary
	if len(records) == 0 {
		return s
	}

	s.Count = len(records)
	var peak, trough int
	for i, r := range records {
		s.TotalProductionKwh += r.PeriodProductionKwh
		if r.PeriodProductionKwh > records[peak].PeriodProductionKwh {
			peak = i
		}
		if r.PeriodProductionKwh < records[trough].PeriodProductionKwh {
			trough = i
		}
		if r.Clamped {
			s.ClampedPeriods++
		}
	}
	s.AveragePerPeriodKwh = s.TotalProductionKwh / float64(s.Count)

	peakRecord := records[peak]
	troughRecord := records[trough]
	s.PeakRecord = &peakRecord
	s.TroughRecord = &troughRecord

	last := records[len(records)-1]
	s.LatestCumulativeKwh = last.CumulativeKwh
	s.FirstTimestamp = records[0].Timestamp
	s.LastTimestamp = last.Timestamp
	s.OverallGrowthPct = overallGrowth(records)
	return s
}

func overallGrowth(records []types.PeriodRecord) float64 {
	base := -1
	for i, r := range records {
		if !r.IsFirstPeriod {
			base = i
			break
		}
	}
	if base < 0 {
		return 0
	}

	latest := -1
	for i := len(records) - 1; i >= base; i-- {
		if !records[i].IsFirstPeriod && records[i].PeriodProductionKwh > 0 {
			latest = i
			break
		}
	}
	if latest <= base {
		return 0
	}
	return GrowthPct(records[base].PeriodProductionKwh, records[latest].PeriodProductionKwh)
}
