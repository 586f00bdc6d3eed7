package models

import (
	"math"
	"math/rand"

	"tabserve/internal/errors"
)

// LinearThreshold is a perceptron over standardised features. It only emits
// hard labels, so it loads as a plain BinaryClassifier.
type LinearThreshold struct {
	Epochs    int
	Seed      int64
	NFeatures int
	Mean      []float64
	Scale     []float64
	Weights   []float64
	Bias      float64
}

func NewLinearThreshold() *LinearThreshold {
	return &LinearThreshold{Epochs: 20, Seed: 42}
}

func (l *LinearThreshold) Name() string { return "LinearThreshold" }

func (l *LinearThreshold) NumFeatures() int { return l.NFeatures }

func (l *LinearThreshold) Fit(X [][]float64, y []int) error {
	if err := checkTrainingSet(X, y); err != nil {
		return err
	}
	n, d := len(X), len(X[0])
	l.NFeatures = d
	l.Mean = make([]float64, d)
	l.Scale = make([]float64, d)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			l.Mean[j] += X[i][j]
		}
		l.Mean[j] /= float64(n)
		v := 0.0
		for i := 0; i < n; i++ {
			dv := X[i][j] - l.Mean[j]
			v += dv * dv
		}
		l.Scale[j] = math.Sqrt(v / float64(n))
		if l.Scale[j] == 0 {
			l.Scale[j] = 1
		}
	}

	// averaged perceptron: the running weights are summed after every
	// example and the mean is kept.
	l.Weights = make([]float64, d)
	l.Bias = 0
	sumW := make([]float64, d)
	sumB := 0.0
	epochs := l.Epochs
	if epochs <= 0 {
		epochs = 20
	}
	rng := rand.New(rand.NewSource(l.Seed))
	order := rng.Perm(n)
	z := make([]float64, d)
	for e := 0; e < epochs; e++ {
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order {
			l.standardise(X[i], z)
			target := -1.0
			if y[i] == 1 {
				target = 1.0
			}
			if target*l.margin(z) <= 0 {
				for j := range l.Weights {
					l.Weights[j] += target * z[j]
				}
				l.Bias += target
			}
			for j := range sumW {
				sumW[j] += l.Weights[j]
			}
			sumB += l.Bias
		}
	}
	steps := float64(epochs * n)
	for j := range l.Weights {
		l.Weights[j] = sumW[j] / steps
	}
	l.Bias = sumB / steps
	return nil
}

func (l *LinearThreshold) Predict(X [][]float64) ([]int, error) {
	if err := checkShape(X, l.NFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	z := make([]float64, l.NFeatures)
	for i, x := range X {
		l.standardise(x, z)
		if l.margin(z) >= 0 {
			out[i] = 1
		}
	}
	return out, nil
}

func (l *LinearThreshold) standardise(x, dst []float64) {
	for j := range x {
		dst[j] = (x[j] - l.Mean[j]) / l.Scale[j]
	}
}

func (l *LinearThreshold) margin(z []float64) float64 {
	s := l.Bias
	for j, w := range l.Weights {
		s += w * z[j]
	}
	return s
}

func checkTrainingSet(X [][]float64, y []int) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return errors.New("empty training set")
	}
	if len(X) != len(y) {
		return errors.Newf("training set has %d rows but %d labels", len(X), len(y))
	}
	d := len(X[0])
	for i, row := range X {
		if len(row) != d {
			return errors.Newf("training row %d has %d features, want %d", i, len(row), d)
		}
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return errors.Newf("training label %d at row %d is not 0 or 1", v, i)
		}
	}
	return nil
}
