package data

import (
	"encoding/csv"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

// GenerateSynthetic draws n rows of nFeatures standard normals and labels a
// row positive when x0 + 0.5*x1 + 0.3*x2 plus gaussian noise is above zero.
func GenerateSynthetic(n, nFeatures int, seed int64) ([][]float64, []int) {
	if nFeatures < 3 {
		nFeatures = 3
	}
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		row := make([]float64, nFeatures)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		X[i] = row
		if row[0]+row[1]*0.5+row[2]*0.3+rng.NormFloat64()*0.5 > 0 {
			y[i] = 1
		}
	}
	return X, y
}

// WriteSampleCSV writes SamplePatients with an id column, the shape the
// server's /predict_csv expects.
func WriteSampleCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append([]string{"id"}, FeatureNames...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, p := range SamplePatients {
		rec := []string{strconv.FormatInt(p.ID, 10)}
		for _, v := range p.Features() {
			rec = append(rec, strconv.Itoa(v))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteSampleCSVFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteSampleCSV(f)
}
