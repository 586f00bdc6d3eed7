package report

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"tabserve/internal/errors"
)

// LearningCurve holds train and holdout scores measured at growing training
// set sizes. Every slice has len(Sizes) entries.
type LearningCurve struct {
	Sizes    []int
	TrainAcc []float64
	TestAcc  []float64
	TrainF1  []float64
	TestF1   []float64
	TrainROC []float64
	TestROC  []float64
}

func NewLearningCurve(sizes []int) *LearningCurve {
	n := len(sizes)
	return &LearningCurve{
		Sizes:    sizes,
		TrainAcc: make([]float64, n),
		TestAcc:  make([]float64, n),
		TrainF1:  make([]float64, n),
		TestF1:   make([]float64, n),
		TrainROC: make([]float64, n),
		TestROC:  make([]float64, n),
	}
}

// CurveSizes spreads points training sizes from first to total,
// geometrically when useLog is set. Sizes are strictly increasing and the
// last is total.
func CurveSizes(total, points, first int, useLog bool) []int {
	if points <= 1 {
		points = 2
	}
	if first < 10 {
		first = 10
	}
	if first > total {
		first = int(math.Max(10, float64(total)/2))
	}
	sizes := make([]int, 0, points)
	ratio := math.Pow(float64(total)/float64(first), 1.0/float64(points-1))
	step := float64(total-first) / float64(points-1)
	for i := 0; i < points; i++ {
		var s int
		if useLog {
			s = int(math.Round(float64(first) * math.Pow(ratio, float64(i))))
		} else {
			s = int(math.Round(float64(first) + float64(i)*step))
		}
		sizes = append(sizes, min(s, total))
	}

	cleaned := make([]int, 0, len(sizes))
	last := -1
	for _, s := range sizes {
		if s <= last {
			s = last + 1
		}
		s = min(s, total)
		if s != last {
			cleaned = append(cleaned, s)
			last = s
		}
	}
	cleaned[len(cleaned)-1] = total
	return cleaned
}

// WriteCSV writes one row per size.
func (c *LearningCurve) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"size", "train_acc", "test_acc", "train_f1", "test_f1", "train_roc_auc", "test_roc_auc"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for i, s := range c.Sizes {
		rec := []string{strconv.Itoa(s),
			f(c.TrainAcc[i]), f(c.TestAcc[i]),
			f(c.TrainF1[i]), f(c.TestF1[i]),
			f(c.TrainROC[i]), f(c.TestROC[i]),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SavePNG plots accuracy and F1 against training size.
func (c *LearningCurve) SavePNG(path string) error {
	p := plot.New()
	p.Title.Text = "Learning curve"
	p.X.Label.Text = "Training samples"
	p.Y.Label.Text = "Score"
	p.Y.Min = 0
	p.Y.Max = 1

	toXY := func(ys []float64) plotter.XYs {
		pts := make(plotter.XYs, len(c.Sizes))
		for i := range c.Sizes {
			pts[i].X = float64(c.Sizes[i])
			pts[i].Y = ys[i]
		}
		return pts
	}
	if err := plotutil.AddLinePoints(p,
		"Train (acc)", toXY(c.TrainAcc), "Holdout (acc)", toXY(c.TestAcc),
		"Train (F1)", toXY(c.TrainF1), "Holdout (F1)", toXY(c.TestF1),
	); err != nil {
		return errors.Wrap(err, "plot learning curve")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	return errors.Wrapf(p.Save(8*vg.Inch, 4*vg.Inch, path), "save %s", path)
}
