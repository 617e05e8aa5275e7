package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const columnWidth = 30

// WriteXLSX writes t as a single-sheet workbook: the header row followed by
// one row per record.
func WriteXLSX(w io.Writer, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Kind.SheetName()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(sheet, "A1", &t.Headers); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if len(t.Headers) > 0 {
		if err := styleColumns(f, sheet, len(t.Headers), len(t.Rows)+1); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func styleColumns(f *excelize.File, sheet string, cols, rows int) error {
	last, err := excelize.ColumnNumberToName(cols)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, columnWidth); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	bottomRight, err := excelize.CoordinatesToCellName(cols, rows)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", bottomRight, style)
}
