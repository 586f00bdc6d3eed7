package models

import (
	"math/rand"
)

// Bagging averages full-feature trees fitted on bootstrap resamples.
type Bagging struct {
	NEstimators        int
	MaxDepth           int
	MinSamples         int
	MaxThresholdsPerFe int
	Seed               int64
	NFeatures          int
	Trees              []*DecisionTree
}

func NewBagging() *Bagging {
	return &Bagging{NEstimators: 30, MaxDepth: 6, MinSamples: 20, MaxThresholdsPerFe: 32, Seed: 42}
}

func (bg *Bagging) Name() string { return "Bagging" }

func (bg *Bagging) NumFeatures() int { return bg.NFeatures }

func (bg *Bagging) Fit(X [][]float64, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	if bg.NEstimators <= 0 {
		bg.NEstimators = 30
	}
	bg.NFeatures = len(X[0])
	rng := rand.New(rand.NewSource(bg.Seed))
	bg.Trees = make([]*DecisionTree, 0, bg.NEstimators)
	for k := 0; k < bg.NEstimators; k++ {
		Xb, yb := bootstrap(rng, X, y)
		dt := NewDecisionTree()
		dt.MaxDepth = bg.MaxDepth
		dt.MinSamplesSplit = bg.MinSamples
		dt.MaxThresholdsPerFe = bg.MaxThresholdsPerFe
		dt.rng = rand.New(rand.NewSource(rng.Int63()))
		if err := dt.Fit(Xb, yb); err != nil {
			return err
		}
		bg.Trees = append(bg.Trees, dt)
	}
	return nil
}

func (bg *Bagging) Predict(X [][]float64) ([]int, error) {
	ps, err := bg.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(ps), nil
}

func (bg *Bagging) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkShape(X, bg.NFeatures); err != nil {
		return nil, err
	}
	return averageProba(bg.Trees, X)
}
