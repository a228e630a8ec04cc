package energy

import (
	"fmt"

	"github.com/solarledger/solarledger/pkg/types"
)

// ToPeriodSeries derives per-period production from cumulative readings.
//
// Only readings at or after windowStart are emitted (all of them when
// windowStart is empty) but every reading is available as a lookback value, so
// the first record in the window can subtract the reading one period before
// it. When the calendar-previous reading is missing the first record is a
// first period with 0 production and later records fall back to the previous
// emitted record. Negative deltas are clamped to 0 and flagged.
//
// The readings slice is not modified.
func ToPeriodSeries(readings []types.CumulativeReading, g types.Granularity, windowStart string) []types.PeriodRecord {
	if len(readings) == 0 {
		return []types.PeriodRecord{}
	}

	sorted := uniqueSorted(readings)
	index := make(map[string]float64, len(sorted))
	for _, r := range sorted {
		index[r.Timestamp] = r.CumulativeKwh()
	}

	records := make([]types.PeriodRecord, 0, len(sorted))
	var running float64
	for _, r := range sorted {
		if windowStart != "" && r.Timestamp < windowStart {
			continue
		}

		rec := types.PeriodRecord{
			Timestamp:     r.Timestamp,
			Date:          g.Display(r.Timestamp),
			CumulativeKwh: r.CumulativeKwh(),
		}

		priorTS, hasPrior := g.Previous(r.Timestamp)
		priorKwh, found := index[priorTS]
		switch {
		case hasPrior && found:
			rec.PriorTimestamp = priorTS
			rec.CalculationNotes = append(rec.CalculationNotes,
				fmt.Sprintf("previous period %s: %.3f kWh", priorTS, priorKwh))
			setProduction(&rec, rec.CumulativeKwh-priorKwh)
		case len(records) == 0:
			rec.IsFirstPeriod = true
			rec.CalculationNotes = append(rec.CalculationNotes,
				fmt.Sprintf("no data before %s, production set to 0", r.Timestamp))
		default:
			prev := records[len(records)-1]
			rec.PriorTimestamp = prev.Timestamp
			if hasPrior {
				rec.CalculationNotes = append(rec.CalculationNotes,
					fmt.Sprintf("no reading for %s, using %s: %.3f kWh", priorTS, prev.Timestamp, prev.CumulativeKwh))
			} else {
				rec.CalculationNotes = append(rec.CalculationNotes,
					fmt.Sprintf("unrecognized timestamp, using %s: %.3f kWh", prev.Timestamp, prev.CumulativeKwh))
			}
			setProduction(&rec, rec.CumulativeKwh-prev.CumulativeKwh)
		}

		if len(records) > 0 {
			rec.GrowthPct = GrowthPct(records[len(records)-1].PeriodProductionKwh, rec.PeriodProductionKwh)
		}
		running += rec.PeriodProductionKwh
		rec.RunningProductionKwh = running

		records = append(records, rec)
	}
	return records
}

func setProduction(rec *types.PeriodRecord, delta float64) {
	if delta < 0 {
		rec.Clamped = true
		rec.CalculationNotes = append(rec.CalculationNotes,
			fmt.Sprintf("cumulative value decreased by %.3f kWh, production clamped to 0", -delta))
		delta = 0
	}
	rec.PeriodProductionKwh = delta
}

// uniqueSorted returns a sorted copy of readings with one entry per timestamp,
// keeping the last occurrence.
func uniqueSorted(readings []types.CumulativeReading) []types.CumulativeReading {
	sorted := make([]types.CumulativeReading, len(readings))
	copy(sorted, readings)
	sortReadings(sorted)

	out := sorted[:0]
	for i, r := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Timestamp == r.Timestamp {
			continue
		}
		out = append(out, r)
	}
	return out
}
