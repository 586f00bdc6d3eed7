package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabserve/internal/errors"
)

const heartCSV = `id,age,gender,cholesterol,blood_pressure,heart_rate,smoking,diabetes,family_history
1001,45,1,180,120,70,0,0,1
1002,62,0,240,140,85,1,1,1
1003,34,1,150,110,65,0,0,0
1004,55,1,210,135,80,1,0,1
1005,41,0,190,125,75,0,1,0
`

func TestParseCSV_ExtractsIDColumn(t *testing.T) {
	f, err := ParseCSV([]byte(heartCSV))
	require.NoError(t, err)

	assert.Equal(t, 5, f.Len())
	assert.Equal(t, []any{int64(1001), int64(1002), int64(1003), int64(1004), int64(1005)}, f.IDs)
	assert.Len(t, f.Columns, 8)
	assert.NotContains(t, f.Columns, "id")
	assert.Equal(t, []string{"45", "1", "180", "120", "70", "0", "0", "1"}, f.Rows[0])
}

func TestParseCSV_SynthesisesIDs(t *testing.T) {
	f, err := ParseCSV([]byte("a,b\n1,2\n3,4\n5,6\n"))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, f.IDs)
	assert.Equal(t, []string{"a", "b"}, f.Columns)
}

func TestParseCSV_IDColumnInTheMiddle(t *testing.T) {
	f, err := ParseCSV([]byte("a,id,b\n1,p-7,2\n3,2.5,4\n"))
	require.NoError(t, err)
	assert.Equal(t, []any{"p-7", 2.5}, f.IDs)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, f.Rows)
}

func TestParseCSV_LargeIDsKeepTheirDigits(t *testing.T) {
	f, err := ParseCSV([]byte("id,a\n99999999999999999999,1\n9007199254740993,2\n1e3,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []any{"99999999999999999999", int64(9007199254740993), int64(1000)}, f.IDs)
}

func TestParseJSON_LargeIDsKeepTheirDigits(t *testing.T) {
	f, err := ParseJSON([]byte(`[{"id":99999999999999999999,"a":1},{"id":9007199254740993,"a":2},{"id":2.5,"a":3}]`))
	require.NoError(t, err)
	assert.Equal(t, []any{"99999999999999999999", int64(9007199254740993), 2.5}, f.IDs)
}

func TestParseCSV_PassesNonNumericThrough(t *testing.T) {
	f, err := ParseCSV([]byte("age,sex\n45,male\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"45", "male"}}, f.Rows)
}

func TestParseCSV_BOM(t *testing.T) {
	f, err := ParseCSV(append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,x\n7,1\n")...))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, f.IDs)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		hint string
	}{
		{"empty", "", "empty"},
		{"header only", "id,a,b\n", "no data rows"},
		{"ragged", "a,b\n1,2\n3\n", "line 3"},
		{"bare quote", "a,b\n1,\"2\n", "malformed"},
		{"duplicate column", "a,a\n1,2\n", "repeats column a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrParse))
			assert.Contains(t, errors.FlattenHints(err), tt.hint)
		})
	}
}

func TestParseJSON(t *testing.T) {
	in := `[
  {"id": 2001, "age": 45, "gender": 1, "smoker": "no"},
  {"gender": 0, "smoker": "yes", "age": 62, "id": 2002},
  {"id": "x-3", "age": 34.5, "gender": null, "smoker": true}
]`
	f, err := ParseJSON([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2001), int64(2002), "x-3"}, f.IDs)
	assert.Equal(t, []string{"age", "gender", "smoker"}, f.Columns)
	assert.Equal(t, [][]string{
		{"45", "1", "no"},
		{"62", "0", "yes"},
		{"34.5", "", "true"},
	}, f.Rows)
}

func TestParseJSON_SynthesisesIDs(t *testing.T) {
	f, err := ParseJSON([]byte(`[{"a":1},{"a":2}]`))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(0), int64(1)}, f.IDs)
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"invalid", `[{"a":1},`},
		{"object", `{"a":1}`},
		{"empty list", `[]`},
		{"scalar record", `[1,2]`},
		{"missing field", `[{"a":1,"b":2},{"a":3}]`},
		{"extra field", `[{"a":1},{"a":3,"c":4}]`},
		{"renamed field", `[{"a":1,"b":2},{"a":3,"c":4}]`},
		{"duplicate key", `[{"id":1,"a":10,"a":20},{"id":2,"a":30,"a":40}]`},
		{"duplicate key later", `[{"a":1,"b":2},{"a":3,"a":4}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrParse))
			assert.NotEmpty(t, errors.FlattenHints(err))
		})
	}
}

func TestParseJSON_RepeatedKeyNamesTheField(t *testing.T) {
	_, err := ParseJSON([]byte(`[{"id":1,"a":10,"a":20},{"id":2,"a":30,"a":40}]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrParse))
	assert.Contains(t, errors.FlattenHints(err), "record 0 repeats field a")
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatCSV, FormatFor("data.csv", "application/octet-stream"))
	assert.Equal(t, FormatJSON, FormatFor("data.JSON", ""))
	assert.Equal(t, FormatJSON, FormatFor("upload", "application/json"))
	assert.Equal(t, FormatCSV, FormatFor("upload", ""))
}

func TestParse_Dispatch(t *testing.T) {
	f, err := Parse([]byte(`[{"id":1,"x":2}]`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())

	_, err = Parse([]byte("x"), Format(99))
	assert.True(t, errors.Is(err, errors.ErrParse))
}

func TestStage_RemovesFileOnClose(t *testing.T) {
	dir := t.TempDir()
	s, err := Stage(dir, strings.NewReader(heartCSV), 1<<20)
	require.NoError(t, err)

	b, err := s.Bytes()
	require.NoError(t, err)
	assert.Equal(t, heartCSV, string(b))
	assert.Equal(t, int64(len(heartCSV)), s.Size())
	assert.FileExists(t, s.Path())

	require.NoError(t, s.Close())
	assert.NoFileExists(t, s.Path())
	assert.NoError(t, s.Close())
}

func TestStage_TooLargeLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	_, err := Stage(dir, bytes.NewReader(make([]byte, 2048)), 1024)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTooLarge))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStage_ExactLimitIsAccepted(t *testing.T) {
	s, err := Stage(t.TempDir(), bytes.NewReader(make([]byte, 1024)), 1024)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, int64(1024), s.Size())
}

func TestStage_BadDir(t *testing.T) {
	_, err := Stage(filepath.Join(t.TempDir(), "missing"), strings.NewReader("x"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrStorage))
}
