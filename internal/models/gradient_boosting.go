package models

import (
	"math"
	"sort"
)

type gbTree struct {
	Feature   int
	Threshold float64
	LeftVal   float64
	RightVal  float64
}

// GradientBoosting fits depth-1 regression stumps on logistic residuals.
type GradientBoosting struct {
	NEstimators        int
	LearningRate       float64
	MinSamples         int
	MaxThresholdsPerFe int
	NFeatures          int
	Init               float64
	Trees              []gbTree
}

func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{NEstimators: 50, LearningRate: 0.1, MaxThresholdsPerFe: 32}
}

func (gb *GradientBoosting) Name() string { return "GradientBoosting" }

func (gb *GradientBoosting) NumFeatures() int { return gb.NFeatures }

func sigmoid(z float64) float64 { return 1.0 / (1.0 + math.Exp(-z)) }

func (gb *GradientBoosting) Fit(X [][]float64, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	n := len(X)
	gb.NFeatures = len(X[0])
	pos := 0
	for i := 0; i < n; i++ {
		if y[i] == 1 {
			pos++
		}
	}
	base := float64(pos) / float64(n)
	base = math.Min(math.Max(base, 1e-3), 1-1e-3)
	gb.Init = math.Log(base / (1.0 - base))
	F := make([]float64, n)
	for i := 0; i < n; i++ {
		F[i] = gb.Init
	}

	gb.Trees = gb.Trees[:0]
	for m := 0; m < gb.NEstimators; m++ {
		r := make([]float64, n)
		for i := 0; i < n; i++ {
			r[i] = float64(y[i]) - sigmoid(F[i])
		}

		best, ok := gb.bestStump(X, r)
		if !ok {
			break
		}
		gb.Trees = append(gb.Trees, best)
		for i := 0; i < n; i++ {
			F[i] += gb.LearningRate * best.value(X[i])
		}
	}
	return nil
}

func (gb *GradientBoosting) bestStump(X [][]float64, r []float64) (gbTree, bool) {
	n := len(X)
	best := gbTree{Feature: -1}
	bestSSE := math.MaxFloat64
	for j := 0; j < gb.NFeatures; j++ {
		for _, thr := range gbCandidateThresholds(X, j, gb.MaxThresholdsPerFe) {
			leftSum, leftCount := 0.0, 0.0
			rightSum, rightCount := 0.0, 0.0
			for i := 0; i < n; i++ {
				if X[i][j] <= thr {
					leftSum += r[i]
					leftCount++
				} else {
					rightSum += r[i]
					rightCount++
				}
			}
			if leftCount == 0 || rightCount == 0 {
				continue
			}
			if int(leftCount) < gb.MinSamples || int(rightCount) < gb.MinSamples {
				continue
			}
			leftAvg := leftSum / leftCount
			rightAvg := rightSum / rightCount

			sse := 0.0
			for i := 0; i < n; i++ {
				d := r[i] - rightAvg
				if X[i][j] <= thr {
					d = r[i] - leftAvg
				}
				sse += d * d
			}
			if sse < bestSSE {
				bestSSE = sse
				best = gbTree{Feature: j, Threshold: thr, LeftVal: leftAvg, RightVal: rightAvg}
			}
		}
	}
	return best, best.Feature != -1
}

func (t gbTree) value(x []float64) float64 {
	if x[t.Feature] > t.Threshold {
		return t.RightVal
	}
	return t.LeftVal
}

func (gb *GradientBoosting) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkShape(X, gb.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		f := gb.Init
		for _, t := range gb.Trees {
			f += gb.LearningRate * t.value(X[i])
		}
		out[i] = sigmoid(f)
	}
	return out, nil
}

func (gb *GradientBoosting) Predict(X [][]float64) ([]int, error) {
	ps, err := gb.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(ps), nil
}

func gbCandidateThresholds(X [][]float64, j int, nCand int) []float64 {
	if nCand <= 0 {
		nCand = 16
	}
	n := len(X)
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = X[i][j]
	}
	sort.Float64s(vals)
	out := make([]float64, 0, nCand)
	for k := 1; k < nCand; k++ {
		idx := int(math.Round(float64(k) / float64(nCand) * float64(n-1)))
		if idx <= 0 || idx >= n {
			continue
		}
		thr := vals[idx]
		if len(out) == 0 || thr != out[len(out)-1] {
			out = append(out, thr)
		}
	}
	if len(out) == 0 {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += vals[i]
		}
		out = append(out, sum/float64(n))
	}
	return out
}
