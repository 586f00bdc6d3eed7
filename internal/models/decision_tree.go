package models

import (
	"math"
	"math/rand"
)

type DTNode struct {
	Feature   int
	Threshold float64
	Left      *DTNode
	Right     *DTNode
	IsLeaf    bool
	ProbaLeaf float64
}

// DecisionTree is a gini-split binary tree whose leaves hold the positive
// class share of their training rows.
type DecisionTree struct {
	MaxDepth           int
	MinSamplesSplit    int
	MaxThresholdsPerFe int
	MaxFeatures        int
	Seed               int64
	NFeatures          int
	Root               *DTNode

	rng *rand.Rand
}

func NewDecisionTree() *DecisionTree {
	return &DecisionTree{MaxDepth: 6, MinSamplesSplit: 20, MaxThresholdsPerFe: 64, Seed: 42}
}

func (dt *DecisionTree) Name() string { return "DecisionTree" }

func (dt *DecisionTree) NumFeatures() int { return dt.NFeatures }

func (dt *DecisionTree) Fit(X [][]float64, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	if dt.rng == nil {
		dt.rng = rand.New(rand.NewSource(dt.Seed))
	}
	dt.NFeatures = len(X[0])
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	dt.Root = dt.build(X, y, idx, 0)
	return nil
}

func (dt *DecisionTree) Predict(X [][]float64) ([]int, error) {
	ps, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(ps), nil
}

func (dt *DecisionTree) PredictProba(X [][]float64) ([]float64, error) {
	if err := checkShape(X, dt.NFeatures); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i := range X {
		out[i] = dt.predictProbaOne(X[i])
	}
	return out, nil
}

func (dt *DecisionTree) predictProbaOne(x []float64) float64 {
	n := dt.Root
	if n == nil {
		return 0.5
	}
	for !n.IsLeaf {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
		if n == nil {
			return 0.5
		}
	}
	return n.ProbaLeaf
}

func (dt *DecisionTree) build(X [][]float64, y []int, idx []int, depth int) *DTNode {
	node := &DTNode{}
	p := classProba(y, idx)
	if len(idx) < dt.MinSamplesSplit || depth >= dt.MaxDepth || p == 0 || p == 1 {
		node.IsLeaf = true
		node.ProbaLeaf = p
		return node
	}
	bestFeature := -1
	bestThr := 0.0
	bestImp := math.MaxFloat64
	var leftIdxBest, rightIdxBest []int

	for _, f := range pickFeatures(dt.rng, dt.NFeatures, dt.MaxFeatures) {
		for _, thr := range candidateThresholds(dt.rng, X, idx, f, dt.MaxThresholdsPerFe) {
			lIdx, rIdx := splitIdx(X, idx, f, thr)
			if len(lIdx) == 0 || len(rIdx) == 0 {
				continue
			}
			imp := giniImpurity(y, lIdx, rIdx)
			if imp < bestImp {
				bestImp = imp
				bestFeature = f
				bestThr = thr
				leftIdxBest = lIdx
				rightIdxBest = rIdx
			}
		}
	}

	if bestFeature == -1 {
		node.IsLeaf = true
		node.ProbaLeaf = p
		return node
	}
	node.Feature = bestFeature
	node.Threshold = bestThr
	node.Left = dt.build(X, y, leftIdxBest, depth+1)
	node.Right = dt.build(X, y, rightIdxBest, depth+1)
	return node
}

func classProba(y []int, idx []int) float64 {
	if len(idx) == 0 {
		return 0.5
	}
	sum := 0
	for _, i := range idx {
		sum += y[i]
	}
	return float64(sum) / float64(len(idx))
}

func splitIdx(X [][]float64, idx []int, f int, thr float64) ([]int, []int) {
	l := make([]int, 0, len(idx))
	r := make([]int, 0, len(idx))
	for _, i := range idx {
		if X[i][f] <= thr {
			l = append(l, i)
		} else {
			r = append(r, i)
		}
	}
	return l, r
}

func giniImpurity(y []int, lIdx, rIdx []int) float64 {
	g := func(ids []int) float64 {
		if len(ids) == 0 {
			return 0
		}
		p := 0.0
		for _, i := range ids {
			p += float64(y[i])
		}
		p = p / float64(len(ids))
		return p * (1 - p)
	}
	wl := float64(len(lIdx))
	wr := float64(len(rIdx))
	n := wl + wr
	return (wl/n)*g(lIdx) + (wr/n)*g(rIdx)
}

func candidateThresholds(rng *rand.Rand, X [][]float64, idx []int, f int, maxC int) []float64 {
	values := make([]float64, len(idx))
	for j, i := range idx {
		values[j] = X[i][f]
	}
	rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })
	m := len(values)
	if maxC > 0 && maxC < m {
		m = maxC
	}
	return values[:m]
}

func pickFeatures(rng *rand.Rand, nFeats int, maxFeats int) []int {
	idx := make([]int, nFeats)
	for i := range idx {
		idx[i] = i
	}
	if maxFeats <= 0 || maxFeats >= nFeats {
		return idx
	}
	rng.Shuffle(nFeats, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	return idx[:maxFeats]
}
