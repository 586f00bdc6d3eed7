package data

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSynthetic_Deterministic(t *testing.T) {
	X1, y1 := GenerateSynthetic(200, 8, 42)
	X2, y2 := GenerateSynthetic(200, 8, 42)
	require.Len(t, X1, 200)
	require.Len(t, X1[0], 8)
	assert.Equal(t, X1, X2)
	assert.Equal(t, y1, y2)

	pos := 0
	for _, v := range y1 {
		pos += v
	}
	assert.Greater(t, pos, 40, "both classes should be represented")
	assert.Less(t, pos, 160)
}

func TestWriteSampleCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSampleCSV(&buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "id", rows[0][0])
	assert.Len(t, rows[0], 9)
	assert.Equal(t, []string{"1001", "45", "1", "180", "120", "70", "0", "0", "1"}, rows[1])
	assert.Equal(t, "1005", rows[5][0])
}
