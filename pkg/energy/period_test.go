package energy

import (
	"math"
	"testing"

	"github.com/solarledger/solarledger/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readings(pairs ...any) []types.CumulativeReading {
	var out []types.CumulativeReading
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, types.CumulativeReading{
			Timestamp:    pairs[i].(string),
			CumulativeWh: float64(pairs[i+1].(int)),
		})
	}
	return out
}

func TestToPeriodSeries(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		records := ToPeriodSeries(nil, types.GranularityDay, "")
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("Single Reading", func(t *testing.T) {
		records := ToPeriodSeries(readings("20250101", 5000), types.GranularityDay, "")
		require.Len(t, records, 1)
		assert.True(t, records[0].IsFirstPeriod)
		assert.Equal(t, 0.0, records[0].PeriodProductionKwh)
		assert.Equal(t, 5.0, records[0].CumulativeKwh)
		assert.Equal(t, 0.0, records[0].GrowthPct)
		assert.Equal(t, "2025-01-01", records[0].Date)
		assert.NotEmpty(t, records[0].CalculationNotes)
	})

	t.Run("Basic Subtraction", func(t *testing.T) {
		records := ToPeriodSeries(readings("20250101", 1000, "20250102", 3000), types.GranularityDay, "")
		require.Len(t, records, 2)
		assert.True(t, records[0].IsFirstPeriod)
		assert.Equal(t, 0.0, records[0].GrowthPct)
		assert.False(t, records[1].IsFirstPeriod)
		assert.Equal(t, 2.0, records[1].PeriodProductionKwh)
		assert.Equal(t, 100.0, records[1].GrowthPct)
		assert.Equal(t, "20250101", records[1].PriorTimestamp)
		assert.Equal(t, 2.0, records[1].RunningProductionKwh)
	})

	t.Run("Window Start Lookback", func(t *testing.T) {
		in := readings(
			"20250101", 1000,
			"20250102", 3000,
			"20250103", 6000,
			"20250104", 7000,
			"20250105", 9000,
		)
		records := ToPeriodSeries(in, types.GranularityDay, "20250103")
		require.Len(t, records, 3)
		assert.Equal(t, "20250103", records[0].Timestamp)
		assert.False(t, records[0].IsFirstPeriod)
		assert.Equal(t, "20250102", records[0].PriorTimestamp)
		assert.Equal(t, 3.0, records[0].PeriodProductionKwh)
		assert.Equal(t, 1.0, records[1].PeriodProductionKwh)
		assert.InDelta(t, -66.666, records[1].GrowthPct, 0.001)
		assert.Equal(t, 2.0, records[2].PeriodProductionKwh)
		assert.Equal(t, 100.0, records[2].GrowthPct)
		assert.Equal(t, 6.0, records[2].RunningProductionKwh)
	})

	t.Run("Window Start Without Lookback", func(t *testing.T) {
		// 20250102 is missing so the first window record has nothing to subtract
		in := readings("20250101", 1000, "20250103", 6000, "20250104", 7000)
		records := ToPeriodSeries(in, types.GranularityDay, "20250103")
		require.Len(t, records, 2)
		assert.True(t, records[0].IsFirstPeriod)
		assert.Equal(t, 0.0, records[0].PeriodProductionKwh)
		assert.Equal(t, 1.0, records[1].PeriodProductionKwh)
		assert.Equal(t, 100.0, records[1].GrowthPct)
	})

	t.Run("Gap Falls Back To Previous Record", func(t *testing.T) {
		in := readings("20250101", 1000, "20250102", 2000, "20250105", 5000)
		records := ToPeriodSeries(in, types.GranularityDay, "")
		require.Len(t, records, 3)
		assert.False(t, records[2].IsFirstPeriod)
		assert.Equal(t, "20250102", records[2].PriorTimestamp)
		assert.Equal(t, 3.0, records[2].PeriodProductionKwh)
		assert.Contains(t, records[2].CalculationNotes[0], "no reading for 20250104")
	})

	t.Run("Flat Line", func(t *testing.T) {
		in := readings("20250101", 4000, "20250102", 4000, "20250103", 4000, "20250104", 4000)
		records := ToPeriodSeries(in, types.GranularityDay, "")
		for _, r := range records {
			assert.Equal(t, 0.0, r.PeriodProductionKwh)
			assert.Equal(t, 0.0, r.GrowthPct)
		}
		assert.Equal(t, 0.0, Summarize(records).OverallGrowthPct)
	})

	t.Run("Negative Delta Clamped", func(t *testing.T) {
		in := readings("20250101", 5000, "20250102", 8000, "20250103", 1000, "20250104", 1500)
		records := ToPeriodSeries(in, types.GranularityDay, "")
		require.Len(t, records, 4)
		for _, r := range records {
			assert.GreaterOrEqual(t, r.PeriodProductionKwh, 0.0)
		}
		assert.True(t, records[2].Clamped)
		assert.Equal(t, 0.0, records[2].PeriodProductionKwh)
		assert.Contains(t, records[2].CalculationNotes[len(records[2].CalculationNotes)-1], "clamped")
		assert.Equal(t, 0.5, records[3].PeriodProductionKwh)
		assert.False(t, records[3].Clamped)
	})

	t.Run("Decreasing Sequence Non Negative", func(t *testing.T) {
		in := readings("2020", 9000, "2021", 7000, "2022", 5000, "2023", 3000)
		records := ToPeriodSeries(in, types.GranularityYear, "")
		for _, r := range records {
			assert.GreaterOrEqual(t, r.PeriodProductionKwh, 0.0)
			assert.False(t, math.IsNaN(r.GrowthPct))
		}
	})

	t.Run("Month Lookback Across Year", func(t *testing.T) {
		in := readings("202411", 100000, "202412", 150000, "202501", 190000, "202502", 260000)
		records := ToPeriodSeries(in, types.GranularityMonth, "202501")
		require.Len(t, records, 2)
		assert.Equal(t, "202412", records[0].PriorTimestamp)
		assert.Equal(t, 40.0, records[0].PeriodProductionKwh)
		assert.Equal(t, 70.0, records[1].PeriodProductionKwh)
		assert.Equal(t, "2025-01", records[0].Date)
	})

	t.Run("Year Lookback", func(t *testing.T) {
		in := readings("2022", 1000000, "2023", 4000000, "2024", 8000000)
		records := ToPeriodSeries(in, types.GranularityYear, "2023")
		require.Len(t, records, 2)
		assert.Equal(t, 3000.0, records[0].PeriodProductionKwh)
		assert.Equal(t, 4000.0, records[1].PeriodProductionKwh)
		assert.InDelta(t, 33.333, records[1].GrowthPct, 0.001)
	})

	t.Run("Leap Day Lookback", func(t *testing.T) {
		in := readings("20240228", 1000, "20240229", 3000, "20240301", 6000)
		records := ToPeriodSeries(in, types.GranularityDay, "20240229")
		require.Len(t, records, 2)
		assert.Equal(t, "20240228", records[0].PriorTimestamp)
		assert.Equal(t, "20240229", records[1].PriorTimestamp)
		assert.Equal(t, 3.0, records[1].PeriodProductionKwh)
	})

	t.Run("Unsorted And Duplicated Input", func(t *testing.T) {
		in := readings("20250103", 6000, "20250101", 1000, "20250102", 2000, "20250102", 3000)
		records := ToPeriodSeries(in, types.GranularityDay, "")
		require.Len(t, records, 3)
		assert.Equal(t, 2.0, records[1].PeriodProductionKwh)
		assert.Equal(t, 3.0, records[2].PeriodProductionKwh)
		// caller's slice stays in its original order
		assert.Equal(t, "20250103", in[0].Timestamp)
	})

	t.Run("Window After All Readings", func(t *testing.T) {
		in := readings("20250101", 1000, "20250102", 2000)
		assert.Empty(t, ToPeriodSeries(in, types.GranularityDay, "20250201"))
	})
}

func TestGrowthPct(t *testing.T) {
	assert.Equal(t, 0.0, GrowthPct(0, 0))
	assert.Equal(t, 100.0, GrowthPct(0, 5))
	assert.Equal(t, 50.0, GrowthPct(2, 3))
	assert.Equal(t, -100.0, GrowthPct(2, 0))
}
