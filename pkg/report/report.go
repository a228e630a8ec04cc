// Package report renders a production report as a workbook or a PDF. Both
// take the report as already converted and only lay it out.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/solarledger/solarledger/pkg/types"
	"github.com/xuri/excelize/v2"
)

const (
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// Filename names the download for r.
func Filename(r types.ProductionReport, format string) string {
	name := fmt.Sprintf("production-%s-%s-%s", r.Granularity, r.WindowStart, r.WindowEnd)
	if r.Device != "" {
		name += "-" + strings.NewReplacer("/", "_", " ", "_").Replace(r.Device)
	}
	return name + "." + format
}

// Build renders r in format.
func Build(r types.ProductionReport, format string) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return BuildXLSX(r)
	case FormatPDF:
		return BuildPDF(r)
	}
	return nil, fmt.Errorf("unknown export format: %s", format)
}

func summaryRows(r types.ProductionReport) [][2]any {
	s := r.Summary
	rows := [][2]any{
		{"Device", r.Device},
		{"Point", r.Point},
		{"Granularity", string(r.Granularity)},
		{"Window", r.Granularity.Display(r.WindowStart) + " to " + r.Granularity.Display(r.WindowEnd)},
		{"Periods", s.Count},
		{"Total Production (kWh)", s.TotalProductionKwh},
		{"Average per Period (kWh)", s.AveragePerPeriodKwh},
		{"Overall Growth (%)", s.OverallGrowthPct},
		{"Latest Cumulative (kWh)", s.LatestCumulativeKwh},
		{"Clamped Periods", s.ClampedPeriods},
	}
	if s.PeakRecord != nil {
		rows = append(rows, [2]any{"Peak", fmt.Sprintf("%s (%.2f kWh)", s.PeakRecord.Date, s.PeakRecord.PeriodProductionKwh)})
	}
	if s.TroughRecord != nil {
		rows = append(rows, [2]any{"Trough", fmt.Sprintf("%s (%.2f kWh)", s.TroughRecord.Date, s.TroughRecord.PeriodProductionKwh)})
	}
	return rows
}

var recordHeaders = []string{"Period", "Cumulative (kWh)", "Production (kWh)", "Growth (%)", "Running (kWh)", "First", "Clamped", "Notes"}

// BuildXLSX renders r as a workbook with a summary sheet and a records sheet.
// Figures are rounded to 2 decimals.
func BuildXLSX(r types.ProductionReport) ([]byte, error) {
	r = r.Rounded()

	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	recordsSheet := "records"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(recordsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Production Report")
	for i, row := range summaryRows(r) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	for i, h := range recordHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(recordsSheet, cell, h)
	}
	for i, rec := range r.Records {
		row := i + 2
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("A%d", row), rec.Date)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("B%d", row), rec.CumulativeKwh)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("C%d", row), rec.PeriodProductionKwh)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("D%d", row), rec.GrowthPct)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("E%d", row), rec.RunningProductionKwh)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("F%d", row), rec.IsFirstPeriod)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("G%d", row), rec.Clamped)
		_ = f.SetCellValue(recordsSheet, fmt.Sprintf("H%d", row), strings.Join(rec.CalculationNotes, "; "))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders r as a single-document PDF with a summary block followed
// by the records table.
func BuildPDF(r types.ProductionReport) ([]byte, error) {
	r = r.Rounded()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Production Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	for _, row := range summaryRows(r) {
		pdf.Cell(0, 6, fmt.Sprintf("%s: %v", row[0], row[1]))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	widths := []float64{28, 32, 32, 24, 30, 14, 18}
	pdf.SetFont("Arial", "B", 9)
	for i, h := range recordHeaders[:len(widths)] {
		pdf.CellFormat(widths[i], 6, h, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, rec := range r.Records {
		pdf.CellFormat(widths[0], 6, rec.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[1], 6, fmt.Sprintf("%.2f", rec.CumulativeKwh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, fmt.Sprintf("%.2f", rec.PeriodProductionKwh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, fmt.Sprintf("%.2f", rec.GrowthPct), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprintf("%.2f", rec.RunningProductionKwh), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[5], 6, yesNo(rec.IsFirstPeriod), "1", 0, "C", false, 0, "")
		pdf.CellFormat(widths[6], 6, yesNo(rec.Clamped), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
