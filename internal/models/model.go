package models

import (
	"tabserve/internal/errors"
)

// Classifier is a trained binary classifier: labels are 0 or 1.
type Classifier interface {
	Name() string
	NumFeatures() int
	Predict(X [][]float64) ([]int, error)
}

// ProbabilisticClassifier also estimates the positive-class probability.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(X [][]float64) ([]float64, error)
}

type Trainer interface {
	Fit(X [][]float64, y []int) error
}

// Model is what the trainer builds and the server loads.
type Model interface {
	Classifier
	Trainer
}

func checkShape(X [][]float64, nFeats int) error {
	if nFeats <= 0 {
		return errors.Wrap(errors.ErrPrediction, "model is not trained")
	}
	for i, row := range X {
		if len(row) != nFeats {
			return errors.WithHintf(
				errors.Wrapf(errors.ErrPrediction, "row %d has %d features, model expects %d", i, len(row), nFeats),
				"the model expects %d feature columns, row %d has %d", nFeats, i, len(row))
		}
	}
	return nil
}

func labelsFromProba(ps []float64) []int {
	out := make([]int, len(ps))
	for i := range ps {
		if ps[i] >= 0.5 {
			out[i] = 1
		}
	}
	return out
}
