// Package features turns the raw cells of an uploaded dataset into the
// numeric matrix a model consumes.
package features

import (
	"math"
	"strconv"
	"strings"

	"tabserve/internal/errors"
)

// Vectorize parses every cell as a finite float. Cells are never coerced: a
// blank or non-numeric value fails the whole matrix with ErrPrediction.
func Vectorize(columns []string, rows [][]string) ([][]float64, error) {
	X := make([][]float64, len(rows))
	for i, row := range rows {
		vec := make([]float64, len(row))
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.WithHintf(
					errors.Wrapf(errors.ErrPrediction, "row %d column %d: %q is not numeric", i, j, cell),
					"column %q has a non-numeric value in row %d", columnName(columns, j), i)
			}
			vec[j] = v
		}
		X[i] = vec
	}
	return X, nil
}

func columnName(columns []string, j int) string {
	if j < len(columns) {
		return columns[j]
	}
	return strconv.Itoa(j)
}
