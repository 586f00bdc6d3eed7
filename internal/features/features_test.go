package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabserve/internal/errors"
)

func TestVectorize(t *testing.T) {
	X, err := Vectorize([]string{"age", "bmi"}, [][]string{{"45", "22.5"}, {" 62 ", "-1e2"}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{45, 22.5}, {62, -100}}, X)
}

func TestVectorize_Empty(t *testing.T) {
	X, err := Vectorize(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, X)
}

func TestVectorize_RejectsNonNumeric(t *testing.T) {
	tests := []struct {
		name string
		cell string
	}{
		{"text", "male"},
		{"blank", ""},
		{"nan", "NaN"},
		{"inf", "+Inf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Vectorize([]string{"age", "gender"}, [][]string{{"45", "1"}, {"50", tt.cell}})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrPrediction))
			assert.Contains(t, errors.FlattenHints(err), `column "gender"`)
		})
	}
}
