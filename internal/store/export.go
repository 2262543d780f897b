package store

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Skufu/RenalRisk/internal/assessment"
)

const exportSheet = "Assessments"

var exportHeader = []string{
	"ID", "Created At", "Predictor", "Stage", "Risk Score", "Risk Category",
	"eGFR", "Cockcroft", "Cockcroft Source", "IMC", "Age", "Sex",
	"SR-IRC", "SR-IRC Tier",
}

var exportWidths = []float64{38, 22, 14, 8, 12, 14, 10, 12, 24, 10, 8, 6, 10, 14}

// WriteXLSX writes reports as a single-sheet workbook with a frozen header.
func WriteXLSX(w io.Writer, reports []*assessment.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range exportHeader {
		if err := setCell(f, col+1, 1, header); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(exportSheet, name, name, exportWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, r := range reports {
		row := []interface{}{
			r.ID.String(),
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Predictor,
			r.Stage,
			r.RiskScore,
			string(r.RiskCategory),
			r.Indicators.EGFR,
			r.Indicators.Cockcroft,
			string(r.Indicators.CockcroftSource),
			r.Indicators.BMI,
			r.Age,
			string(r.Sex),
			nil,
			nil,
		}
		if r.SRIRC != nil {
			row[12] = r.SRIRC.Score
			row[13] = string(r.SRIRC.Tier.Level)
		}
		for col, value := range row {
			if value == nil {
				continue
			}
			if err := setCell(f, col+1, i+2, value); err != nil {
				return fmt.Errorf("row %d: %w", i+2, err)
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func setCell(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(exportSheet, cell, value)
}
