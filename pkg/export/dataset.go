package export

import (
	"fmt"
	"strconv"
)

// Dataset defines tabular export content. Each row holds one value per header
// in header order; numbers stay numeric so spreadsheet renderers keep them.
type Dataset struct {
	Headers []string
	Rows    [][]interface{}
}

// Renderer turns a dataset into a downloadable document.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// Project returns a dataset restricted to the named headers, in the given order.
func (d Dataset) Project(headers ...string) (Dataset, error) {
	index := make(map[string]int, len(d.Headers))
	for i, h := range d.Headers {
		index[h] = i
	}
	positions := make([]int, len(headers))
	for i, h := range headers {
		pos, ok := index[h]
		if !ok {
			return Dataset{}, fmt.Errorf("unknown column %q", h)
		}
		positions[i] = pos
	}

	out := Dataset{Headers: append([]string(nil), headers...), Rows: make([][]interface{}, 0, len(d.Rows))}
	for _, row := range d.Rows {
		projected := make([]interface{}, len(positions))
		for i, pos := range positions {
			if pos < len(row) {
				projected[i] = row[pos]
			}
		}
		out.Rows = append(out.Rows, projected)
	}
	return out, nil
}

func (d Dataset) validate(kind string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Headers) {
			return fmt.Errorf("%s row %d has %d cells, want %d", kind, i, len(row), len(d.Headers))
		}
	}
	return nil
}

// FormatCell renders a cell value as text.
func FormatCell(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprint(value)
	}
}
