// Package csvfile loads recipient CSV files and resolves column references.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Column is a resolved CSV column: its positional index and header name.
type Column struct {
	Index int
	Name  string
}

// Load reads a CSV file and returns its header row plus one map per data
// row, keyed by header name. A UTF-8 byte-order mark on the first header
// is stripped.
func Load(path string) ([]string, []map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s: empty CSV file", path)
	}

	headers := records[0]
	headers[0] = strings.TrimPrefix(headers[0], "\ufeff")

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// ResolveColumn resolves a column reference against the header row. A
// numeric reference is used as a positional index, anything else is
// looked up as a header name. An empty reference resolves to column 0.
func ResolveColumn(ref string, headers []string) (Column, error) {
	if ref == "" {
		return columnAt(0, headers)
	}
	if idx, err := strconv.Atoi(ref); err == nil {
		return columnAt(idx, headers)
	}
	for i, h := range headers {
		if h == ref {
			return Column{Index: i, Name: h}, nil
		}
	}
	return Column{}, fmt.Errorf("column %q not found in CSV headers", ref)
}

func columnAt(idx int, headers []string) (Column, error) {
	if idx < 0 || idx >= len(headers) {
		return Column{}, fmt.Errorf("column index %d out of range (CSV has %d columns)", idx, len(headers))
	}
	return Column{Index: idx, Name: headers[idx]}, nil
}
