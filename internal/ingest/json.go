package ingest

import (
	"bytes"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseJSON reads an array of flat objects that all share one field set.
// Column order follows the first record.
func ParseJSON(raw []byte) (Frame, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !gjson.ValidBytes(raw) {
		return Frame{}, parseErr("the file is not valid JSON", "json: invalid document")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsArray() {
		return Frame{}, parseErr("the JSON must be a list of records", "json: top level is %s, want array", doc.Type)
	}
	records := doc.Array()
	if len(records) == 0 {
		return Frame{}, parseErr("the JSON list has no records", "json: empty record set")
	}

	first := records[0]
	if !first.IsObject() {
		return Frame{}, parseErr("record 0 is not an object", "json: record 0 is %s", first.Type)
	}
	var fields []string
	hasID := false
	first.ForEach(func(key, _ gjson.Result) bool {
		if key.Str == IDColumn {
			hasID = true
		} else {
			fields = append(fields, key.Str)
		}
		return true
	})
	want, _ := fieldSet(first)

	ids := make([]any, 0, len(records))
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		if !rec.IsObject() {
			return Frame{}, parseErr("record "+strconv.Itoa(i)+" is not an object", "json: record %d is %s", i, rec.Type)
		}
		got, dup := fieldSet(rec)
		if dup != "" {
			return Frame{}, parseErr("record "+strconv.Itoa(i)+" repeats field "+dup, "json: record %d repeats field %q", i, dup)
		}
		if !slices.Equal(got, want) {
			return Frame{}, parseErr("record "+strconv.Itoa(i)+" has different fields than record 0",
				"json: record %d fields [%s], want [%s]", i, strings.Join(got, ", "), strings.Join(want, ", "))
		}
		// index the record once; Get per key would rescan it per column
		vals := make(map[string]gjson.Result, len(fields)+1)
		rec.ForEach(func(key, value gjson.Result) bool {
			vals[key.Str] = value
			return true
		})
		if hasID {
			ids = append(ids, jsonID(vals[IDColumn]))
		}
		row := make([]string, len(fields))
		for j, name := range fields {
			row[j] = cellText(vals[name])
		}
		rows = append(rows, row)
	}
	if !hasID {
		ids = syntheticIDs(len(rows))
	}
	return Frame{IDs: ids, Columns: fields, Rows: rows}, nil
}

// fieldSet returns the record's keys sorted, and the first key that appears
// more than once, if any.
func fieldSet(rec gjson.Result) (keys []string, dup string) {
	rec.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.Str)
		return true
	})
	sort.Strings(keys)
	for i := 1; i < len(keys); i++ {
		if keys[i] == keys[i-1] {
			return keys, keys[i]
		}
	}
	return keys, ""
}

func jsonID(v gjson.Result) any {
	switch v.Type {
	case gjson.Number:
		if id, ok := numericID(v.Raw); ok {
			return id
		}
		return v.Raw
	case gjson.String:
		return v.Str
	case gjson.Null:
		return nil
	}
	return v.Raw
}

// cellText passes values through uninterpreted: numbers keep their literal
// text, strings their content, null becomes blank.
func cellText(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return v.Str
	case gjson.Null:
		return ""
	}
	return v.Raw
}
