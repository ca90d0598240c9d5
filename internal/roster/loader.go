// Package roster reads uploaded employee lists.
package roster

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/attendance-sheet/internal/models"
	appErrors "github.com/noah-isme/attendance-sheet/pkg/errors"
)

const (
	maxXLSRows    = 100000
	maxXLSColumns = 64
)

// Loader turns a tabular upload into an ordered, deduplicated roster.
type Loader struct {
	codeColumns []string
	nameColumns []string
}

// NewLoader builds a loader accepting any of the given header aliases.
func NewLoader(codeColumns, nameColumns []string) *Loader {
	if len(codeColumns) == 0 {
		codeColumns = []string{"Post Code"}
	}
	if len(nameColumns) == 0 {
		nameColumns = []string{"Employee Name"}
	}
	return &Loader{codeColumns: codeColumns, nameColumns: nameColumns}
}

// Load parses the upload. A missing column is reported as SCHEMA_ERROR and an
// undecodable file as UNREADABLE_UPLOAD.
func (l *Loader) Load(filename string, r io.Reader) ([]models.Employee, error) {
	rows, err := readRows(filename, r)
	if err != nil {
		return nil, err
	}
	return l.parse(rows)
}

func (l *Loader) parse(rows [][]string) ([]models.Employee, error) {
	headerAt := -1
	for i, row := range rows {
		if !blank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, appErrors.Clone(appErrors.ErrSchema, "roster is empty")
	}

	header := rows[headerAt]
	codeIdx := findColumn(header, l.codeColumns)
	nameIdx := findColumn(header, l.nameColumns)
	var missing []string
	if codeIdx < 0 {
		missing = append(missing, l.codeColumns[0])
	}
	if nameIdx < 0 {
		missing = append(missing, l.nameColumns[0])
	}
	if len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrSchema, fmt.Sprintf("roster is missing column(s): %s", strings.Join(missing, ", ")))
	}

	seen := make(map[models.Employee]struct{})
	employees := make([]models.Employee, 0, len(rows)-headerAt-1)
	for _, row := range rows[headerAt+1:] {
		emp := models.Employee{Code: cellValue(row, codeIdx), Name: cellValue(row, nameIdx)}
		if emp.Code == "" && emp.Name == "" {
			continue
		}
		if _, dup := seen[emp]; dup {
			continue
		}
		seen[emp] = struct{}{}
		employees = append(employees, emp)
	}
	if len(employees) == 0 {
		return nil, appErrors.Clone(appErrors.ErrSchema, "roster has no employees")
	}
	return employees, nil
}

func readRows(filename string, r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, unreadable(err)
	}

	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx", ".xlsm":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, unreadable(err)
		}
		defer func() { _ = file.Close() }()

		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			return nil, appErrors.Clone(appErrors.ErrUnreadableUpload, "no worksheet found")
		}
		rows, err := file.GetRows(sheets[0])
		if err != nil {
			return nil, unreadable(err)
		}
		return rows, nil
	case ".xls":
		return readXLS(data)
	case ".csv":
		reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, unreadable(err)
		}
		return rows, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnreadableUpload, fmt.Sprintf("unsupported roster file type %q", ext))
	}
}

// readXLS reads the first sheet, guarding against extrame/xls panicking on
// malformed workbooks.
func readXLS(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, unreadable(fmt.Errorf("decode xls: %v", r))
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, unreadable(err)
	}
	if workbook == nil || workbook.NumSheets() == 0 {
		return nil, appErrors.Clone(appErrors.ErrUnreadableUpload, "no worksheet found")
	}
	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return nil, appErrors.Clone(appErrors.ErrUnreadableUpload, "no worksheet found")
	}

	last := int(sheet.MaxRow)
	if last >= maxXLSRows {
		last = maxXLSRows - 1
	}
	rows = make([][]string, 0, last+1)
	for i := 0; i <= last; i++ {
		rows = append(rows, xlsCells(sheet, i))
	}
	return rows, nil
}

// xlsCells returns the cells of row i, or nil when the sheet has no such row.
func xlsCells(sheet *xls.WorkSheet, i int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := sheet.Row(i)
	width := row.LastCol() + 1
	if width < maxXLSColumns {
		width = maxXLSColumns
	}
	cells = make([]string, width)
	for c := range cells {
		cells[c] = row.Col(c)
	}
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func unreadable(err error) error {
	return appErrors.Wrap(err, appErrors.ErrUnreadableUpload.Code, appErrors.ErrUnreadableUpload.Status, appErrors.ErrUnreadableUpload.Message)
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

// findColumn returns the first header cell matching any alias.
func findColumn(header []string, aliases []string) int {
	want := make(map[string]struct{}, len(aliases))
	for _, a := range aliases {
		want[normalizeHeader(a)] = struct{}{}
	}
	for i, h := range header {
		if _, ok := want[normalizeHeader(h)]; ok {
			return i
		}
	}
	return -1
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
