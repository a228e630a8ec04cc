package energy

import "github.com/solarledger/solarledger/pkg/types"

// Result is the output of the full conversion pipeline.
type Result struct {
	Readings []types.CumulativeReading
	Records  []types.PeriodRecord
	Summary  types.Summary
	Report   NormalizeReport
}

// Convert runs rows through Normalize, ToPeriodSeries and Summarize. When
// column is empty the value column is discovered per row.
func Convert(rows []types.RawRow, column string, g types.Granularity, windowStart string) Result {
	readings, report := NormalizeColumn(rows, column)
	records := ToPeriodSeries(readings, g, windowStart)
	return Result{
		Readings: readings,
		Records:  records,
		Summary:  Summarize(records),
		Report:   report,
	}
}
