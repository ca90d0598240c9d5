package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// XLSXExporter renders a dataset into a single-sheet workbook.
type XLSXExporter struct {
	SheetName string
	// FrozenColumns stay visible while scrolling right; the header row is always frozen.
	FrozenColumns int
}

// NewXLSXExporter builds a workbook exporter writing to sheetName.
func NewXLSXExporter(sheetName string, frozenColumns int) *XLSXExporter {
	if sheetName == "" {
		sheetName = defaultSheet
	}
	return &XLSXExporter{SheetName: sheetName, FrozenColumns: frozenColumns}
}

// Render writes headers in bold on row 1 and one dataset row per sheet row.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := e.SheetName
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != defaultSheet {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	headers := make([]interface{}, len(data.Headers))
	for i, h := range data.Headers {
		headers[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("write headers: %w", err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(data.Headers), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("style headers: %w", err)
	}

	for i, row := range data.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if e.FrozenColumns > 0 {
		lastFrozen, err := excelize.ColumnNumberToName(e.FrozenColumns)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, "A", lastFrozen, 18); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}
	topLeft, err := excelize.CoordinatesToCellName(e.FrozenColumns+1, 2)
	if err != nil {
		return nil, err
	}
	activePane := "bottomLeft"
	if e.FrozenColumns > 0 {
		activePane = "bottomRight"
	}
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      e.FrozenColumns,
		YSplit:      1,
		TopLeftCell: topLeft,
		ActivePane:  activePane,
	}); err != nil {
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Extension() string { return "xlsx" }
