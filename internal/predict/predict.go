// Package predict runs a FeatureFrame through the registry's current model
// and summarises the outcome.
package predict

import (
	"context"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"tabserve/internal/errors"
	"tabserve/internal/features"
	"tabserve/internal/ingest"
	"tabserve/internal/registry"
)

// DegradedSeed seeds the placeholder generator used when no model is loaded,
// so identical uploads get identical placeholder outputs.
const DegradedSeed = 42

// ModelSource is satisfied by *registry.Registry.
type ModelSource interface {
	Current() (*registry.Model, bool)
}

type Distribution struct {
	Class0        int     `json:"class_0"`
	Class1        int     `json:"class_1"`
	Class0Percent float64 `json:"class_0_percent"`
	Class1Percent float64 `json:"class_1_percent"`
}

type Result struct {
	Labels        []int
	Probabilities []float64
	Distribution  Distribution
	// Degraded marks placeholder output produced without a model.
	Degraded bool
	Model    string
}

type Engine struct {
	source ModelSource
	logger *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(source ModelSource, opts ...Option) *Engine {
	e := &Engine{source: source, logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Predict labels every row of frame. It fails with ErrPrediction only when a
// model is loaded and rejects the input, and with ErrTimeout when ctx ends
// before the model returns.
func (e *Engine) Predict(ctx context.Context, frame ingest.Frame) (Result, error) {
	return e.PredictNotify(ctx, frame, nil)
}

// PredictNotify is Predict, calling finished exactly once when the model is
// no longer computing. After a timeout the model keeps running in the
// background, so finished may fire after PredictNotify has returned.
func (e *Engine) PredictNotify(ctx context.Context, frame ingest.Frame, finished func()) (Result, error) {
	if finished == nil {
		finished = func() {}
	}
	finished = sync.OnceFunc(finished)
	detached := false
	defer func() {
		if !detached {
			finished()
		}
	}()

	m, ok := e.source.Current()
	if !ok {
		e.logger.Debug("no model loaded, returning placeholder predictions", zap.Int("rows", frame.Len()))
		return degraded(frame.Len()), nil
	}

	X, err := features.Vectorize(align(frame, m.FeatureNames))
	if err != nil {
		return Result{}, err
	}

	type outcome struct {
		labels []int
		probs  []float64
		err    error
	}
	done := make(chan outcome, 1)
	detached = true
	go func() {
		var out outcome
		// finished fires before the result is handed over
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: errors.Wrapf(errors.ErrPrediction, "model panicked: %v", r)}
			}
			finished()
			done <- out
		}()
		out.labels, out.probs, out.err = run(m, X)
	}()

	var out outcome
	select {
	case <-ctx.Done():
		e.logger.Warn("prediction deadline passed, model still running", zap.Int("rows", len(X)))
		return Result{}, errors.Wrapf(errors.Mark(ctx.Err(), errors.ErrTimeout), "predict %d rows", len(X))
	case out = <-done:
	}
	if out.err != nil {
		return Result{}, out.err
	}
	if err := validate(out.labels, out.probs, len(X)); err != nil {
		return Result{}, err
	}
	return Result{
		Labels:        out.labels,
		Probabilities: out.probs,
		Distribution:  Distribute(out.labels),
		Model:         m.Classifier.Name(),
	}, nil
}

func run(m *registry.Model, X [][]float64) ([]int, []float64, error) {
	labels, err := m.Classifier.Predict(X)
	if err != nil {
		return nil, nil, errors.Mark(err, errors.ErrPrediction)
	}
	switch m.Capability {
	case registry.ProbabilisticBinaryClassifier:
		probs, err := m.Probabilistic.PredictProba(X)
		if err != nil {
			return nil, nil, errors.Mark(err, errors.ErrPrediction)
		}
		return labels, probs, nil
	default:
		probs := make([]float64, len(labels))
		for i, l := range labels {
			probs[i] = float64(l)
		}
		return labels, probs, nil
	}
}

func validate(labels []int, probs []float64, rows int) error {
	if len(labels) != rows || len(probs) != rows {
		return errors.Wrapf(errors.ErrPrediction, "model returned %d labels and %d probabilities for %d rows",
			len(labels), len(probs), rows)
	}
	for i, l := range labels {
		if l != 0 && l != 1 {
			return errors.Wrapf(errors.ErrPrediction, "row %d: label %d outside {0,1}", i, l)
		}
		if p := probs[i]; !(p >= 0 && p <= 1) {
			return errors.Wrapf(errors.ErrPrediction, "row %d: probability %v outside [0,1]", i, p)
		}
	}
	return nil
}

// align reorders the frame's columns to the model's training order when the
// frame carries every trained column under the same names. Otherwise columns
// are used positionally.
func align(frame ingest.Frame, trained []string) ([]string, [][]string) {
	if len(trained) == 0 || len(trained) != len(frame.Columns) {
		return frame.Columns, frame.Rows
	}
	pos := make(map[string]int, len(frame.Columns))
	for j, c := range frame.Columns {
		pos[c] = j
	}
	order := make([]int, len(trained))
	identity := true
	for k, name := range trained {
		j, ok := pos[name]
		if !ok {
			return frame.Columns, frame.Rows
		}
		order[k] = j
		identity = identity && j == k
	}
	if identity {
		return frame.Columns, frame.Rows
	}
	rows := make([][]string, len(frame.Rows))
	for i, row := range frame.Rows {
		r := make([]string, len(order))
		for k, j := range order {
			r[k] = row[j]
		}
		rows[i] = r
	}
	return trained, rows
}

func degraded(n int) Result {
	rng := rand.New(rand.NewSource(DegradedSeed))
	labels := make([]int, n)
	for i := range labels {
		labels[i] = rng.Intn(2)
	}
	probs := make([]float64, n)
	for i := range probs {
		probs[i] = rng.Float64()
	}
	return Result{
		Labels:        labels,
		Probabilities: probs,
		Distribution:  Distribute(labels),
		Degraded:      true,
	}
}

// Distribute counts labels per class. Percentages are kept at full precision
// and are both zero for an empty input.
func Distribute(labels []int) Distribution {
	var d Distribution
	for _, l := range labels {
		if l == 1 {
			d.Class1++
		} else {
			d.Class0++
		}
	}
	if n := len(labels); n > 0 {
		d.Class0Percent = float64(d.Class0) / float64(n) * 100
		d.Class1Percent = float64(d.Class1) / float64(n) * 100
	}
	return d
}
