// Package ingest turns an uploaded dataset into a Frame of row identifiers
// and raw feature cells.
package ingest

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"tabserve/internal/errors"
)

// IDColumn is extracted from the features when present.
const IDColumn = "id"

type Format int

const (
	FormatCSV Format = iota + 1
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	}
	return "unknown"
}

// FormatFor picks the parser from the upload's file extension, then its
// content type. CSV is the default.
func FormatFor(filename, contentType string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	}
	if strings.Contains(strings.ToLower(contentType), "json") {
		return FormatJSON
	}
	return FormatCSV
}

// Frame is a parsed dataset. IDs holds int64, float64 or string values, one
// per row; Rows holds the raw cell text of the feature columns.
type Frame struct {
	IDs     []any
	Columns []string
	Rows    [][]string
}

func (f Frame) Len() int { return len(f.Rows) }

// Parse dispatches on format.
func Parse(raw []byte, format Format) (Frame, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(raw)
	case FormatJSON:
		return ParseJSON(raw)
	}
	return Frame{}, errors.Wrapf(errors.ErrParse, "unsupported format %d", format)
}

// parseID keeps integral ids as int64 so they round-trip as JSON integers.
// Anything that is not a number stays text.
func parseID(s string) any {
	if id, ok := numericID(strings.TrimSpace(s)); ok {
		return id
	}
	return s
}

// numericID converts a numeric literal without losing digits: integers that
// overflow int64 are kept as their literal text, and a float is narrowed to
// int64 only when it is integral and exactly representable.
func numericID(lit string) (any, bool) {
	n, err := strconv.ParseInt(lit, 10, 64)
	if err == nil {
		return n, true
	}
	if errors.Is(err, strconv.ErrRange) {
		return lit, true
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}

func syntheticIDs(n int) []any {
	ids := make([]any, n)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

func parseErr(hint string, format string, args ...any) error {
	return errors.WithHint(errors.Wrapf(errors.ErrParse, format, args...), hint)
}
