package report

import (
	"math"
	"sort"
)

// Accuracy is the share of equal labels. Zero for empty input.
func Accuracy(y, pred []int) float64 {
	if len(y) == 0 {
		return 0
	}
	c := 0
	for i := range y {
		if y[i] == pred[i] {
			c++
		}
	}
	return float64(c) / float64(len(y))
}

// Threshold turns positive-class probabilities into labels.
func Threshold(ps []float64, thr float64) []int {
	out := make([]int, len(ps))
	for i := range ps {
		if ps[i] >= thr {
			out[i] = 1
		}
	}
	return out
}

type Confusion struct {
	TP, FP, TN, FN int
}

func ConfusionAt(y []int, ps []float64, thr float64) Confusion {
	var c Confusion
	for i := range y {
		switch pos := ps[i] >= thr; {
		case pos && y[i] == 1:
			c.TP++
		case pos:
			c.FP++
		case y[i] == 0:
			c.TN++
		default:
			c.FN++
		}
	}
	return c
}

func (c Confusion) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

func (c Confusion) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

type scored struct {
	s float64
	y int
}

func byScore(y []int, ps []float64) []scored {
	pairs := make([]scored, len(y))
	for i := range y {
		pairs[i] = scored{ps[i], y[i]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].s > pairs[j].s })
	return pairs
}

// ROCAUC integrates the ROC curve with the trapezoid rule, treating tied
// scores as one step. Zero when only one class is present.
func ROCAUC(y []int, ps []float64) float64 {
	pairs := byScore(y, ps)
	var pos, neg int
	for _, p := range pairs {
		if p.y == 1 {
			pos++
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0
	}
	var tp, fp int
	var auc, prevTPR, prevFPR float64
	prevS := math.Inf(1)
	for _, p := range pairs {
		if p.s != prevS {
			tpr, fpr := float64(tp)/float64(pos), float64(fp)/float64(neg)
			auc += (fpr - prevFPR) * (tpr + prevTPR) / 2
			prevTPR, prevFPR, prevS = tpr, fpr, p.s
		}
		if p.y == 1 {
			tp++
		} else {
			fp++
		}
	}
	auc += (1 - prevFPR) * (1 + prevTPR) / 2
	return auc
}

// BestF1Threshold scans thresholds in steps of 0.005 and returns the one with
// the highest F1.
func BestF1Threshold(y []int, ps []float64) (thr, best float64) {
	if len(ps) == 0 {
		return 0.5, 0
	}
	const steps = 200
	thr, best = 0.5, -1
	for i := 0; i <= steps; i++ {
		t := float64(i) / steps
		if f1 := ConfusionAt(y, ps, t).F1(); f1 > best {
			thr, best = t, f1
		}
	}
	return thr, best
}
