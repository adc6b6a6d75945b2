package request

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadRows reads CSV with a header line; each record becomes a Row keyed by
// the trimmed header names.
func LoadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("rows csv: missing header")
		}
		return nil, fmt.Errorf("rows csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("rows csv: %w", err)
		}

		row := make(Row, len(header))
		for i, name := range header {
			row[name] = record[i]
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// LoadRowsFile reads rows from a CSV file.
func LoadRowsFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rows file: %w", err)
	}
	defer f.Close()

	return LoadRows(f)
}

// RangeRows returns rows {field: n} for n in [from, to).
func RangeRows(field string, from, to int) []Row {
	if to <= from {
		return nil
	}
	rows := make([]Row, 0, to-from)
	for n := from; n < to; n++ {
		rows = append(rows, Row{field: strconv.Itoa(n)})
	}
	return rows
}
