// Package export renders a warehouse configuration as an .xlsx workbook.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"warehouse-wizard/internal/domain"
	"warehouse-wizard/internal/visualization"
)

const (
	SheetConfiguration = "Configuration"
	SheetLayout        = "Layout"
)

// XLSX is a usecase.Renderer.
type XLSX struct{}

func (XLSX) Render(attrs domain.Attributes) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetConfiguration); err != nil {
		return nil, fmt.Errorf("export: rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetLayout); err != nil {
		return nil, fmt.Errorf("export: add sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("export: header style: %w", err)
	}

	if err := writeTable(f, SheetConfiguration, header, []string{"Field", "Value", "Unit"}, configurationRows(attrs)); err != nil {
		return nil, err
	}
	if err := writeTable(f, SheetLayout, header, []string{"Metric", "Value", "Unit"}, layoutRows(visualization.Build(attrs))); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTable(f *excelize.File, sheet string, headerStyle int, header []string, rows [][]any) error {
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("export: %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("export: %s header: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("export: %s header style: %w", sheet, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: %s row %d: %w", sheet, i, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 28); err != nil {
		return fmt.Errorf("export: %s column width: %w", sheet, err)
	}
	return nil
}

func configurationRows(a domain.Attributes) [][]any {
	return [][]any{
		{"Length", floatOrBlank(a.Length), "m"},
		{"Width", floatOrBlank(a.Width), "m"},
		{"Height", floatOrBlank(a.Height), "m"},
		{"Pallet type", stringOrBlank(a.PalletType), ""},
		{"Storage capacity", intOrBlank(a.Storage), "pallets"},
		{"Storage type", stringOrBlank(a.StorageType), ""},
	}
}

func layoutRows(v visualization.View) [][]any {
	fits := "Unknown"
	if v.Fits != nil {
		fits = "No"
		if *v.Fits {
			fits = "Yes"
		}
	}
	return [][]any{
		{"Dimensions", v.Dimensions, "L × W × H"},
		{"Floor area", v.FloorArea, "m²"},
		{"Volume", v.Volume, "m³"},
		{"Pallet footprint", v.PalletFootprint, "m²"},
		{"Pallet positions per floor", v.PalletPositions, "pallets"},
		{"Requested storage fits", fits, ""},
	}
}

func floatOrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func intOrBlank(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func stringOrBlank(v *string) any {
	if v == nil {
		return ""
	}
	return *v
}
