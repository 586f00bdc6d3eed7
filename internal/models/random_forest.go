package models

import (
	"math"
	"math/rand"
)

type RandomForest struct {
	NEstimators        int
	MaxDepth           int
	MinSamples         int
	MaxThresholdsPerFe int
	MaxFeatures        int
	Seed               int64
	NFeatures          int
	Trees              []*DecisionTree
}

func NewRandomForest() *RandomForest {
	return &RandomForest{NEstimators: 100, MaxDepth: 10, MinSamples: 10, MaxThresholdsPerFe: 32, Seed: 42}
}

func (rf *RandomForest) Name() string { return "RandomForest" }

func (rf *RandomForest) NumFeatures() int { return rf.NFeatures }

func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	if rf.NEstimators <= 0 {
		rf.NEstimators = 100
	}
	rf.NFeatures = len(X[0])
	if rf.MaxFeatures <= 0 {
		rf.MaxFeatures = int(math.Max(1, math.Sqrt(float64(rf.NFeatures))))
	}
	rng := rand.New(rand.NewSource(rf.Seed))
	rf.Trees = make([]*DecisionTree, 0, rf.NEstimators)
	for k := 0; k < rf.NEstimators; k++ {
		Xb, yb := bootstrap(rng, X, y)
		dt := NewDecisionTree()
		dt.MaxDepth = rf.MaxDepth
		dt.MinSamplesSplit = rf.MinSamples
		dt.MaxThresholdsPerFe = rf.MaxThresholdsPerFe
		dt.MaxFeatures = rf.MaxFeatures
		dt.rng = rand.New(rand.NewSource(rng.Int63()))
		if err := dt.Fit(Xb, yb); err != nil {
			return err
		}
		rf.Trees = append(rf.Trees, dt)
	}
	return nil
}

func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	ps, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(ps), nil
}

func (rf *RandomForest) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkShape(X, rf.NFeatures); err != nil {
		return nil, err
	}
	return averageProba(rf.Trees, X)
}

func bootstrap(rng *rand.Rand, X [][]float64, y []int) ([][]float64, []int) {
	n := len(X)
	Xb := make([][]float64, n)
	yb := make([]int, n)
	for i := 0; i < n; i++ {
		j := rng.Intn(n)
		Xb[i] = X[j]
		yb[i] = y[j]
	}
	return Xb, yb
}

func averageProba(trees []*DecisionTree, X [][]float64) ([]float64, error) {
	n := len(X)
	out := make([]float64, n)
	if len(trees) == 0 {
		for i := range out {
			out[i] = 0.5
		}
		return out, nil
	}
	for _, dt := range trees {
		p, err := dt.PredictProba(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			out[i] += p[i]
		}
	}
	m := float64(len(trees))
	for i := 0; i < n; i++ {
		out[i] /= m
	}
	return out, nil
}
