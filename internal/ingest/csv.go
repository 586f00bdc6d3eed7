package ingest

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"tabserve/internal/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV reads a header row followed by at least one record. Every record
// must have as many fields as the header.
func ParseCSV(raw []byte) (Frame, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, utf8BOM)))
	r.FieldsPerRecord = 0
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return Frame{}, parseErr("the file is empty", "csv: no header")
	}
	if err != nil {
		return Frame{}, parseErr("the CSV header could not be read", "csv header: %v", err)
	}
	idCol := -1
	columns := make([]string, 0, len(header))
	seen := make(map[string]bool, len(header))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if seen[name] {
			return Frame{}, parseErr("the CSV header repeats column "+name, "csv: duplicate column %q", name)
		}
		seen[name] = true
		if name == IDColumn && idCol < 0 {
			idCol = j
			continue
		}
		columns = append(columns, name)
	}

	var ids []any
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return Frame{}, parseErr("line "+strconv.Itoa(pe.Line)+" of the CSV is malformed", "csv: %v", err)
			}
			return Frame{}, parseErr("the CSV could not be read", "csv: %v", err)
		}
		row := make([]string, 0, len(columns))
		for j, cell := range rec {
			if j == idCol {
				ids = append(ids, parseID(cell))
				continue
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return Frame{}, parseErr("the file has a header but no data rows", "csv: empty record set")
	}
	if idCol < 0 {
		ids = syntheticIDs(len(rows))
	}
	return Frame{IDs: ids, Columns: columns, Rows: rows}, nil
}
