package models

import (
	"bytes"
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"time"

	"tabserve/internal/errors"
)

// Envelope is the on-disk model artifact: the algorithm tag selects the
// concrete type Payload decodes into. Metrics holds the trainer's holdout
// scores, if any.
type Envelope struct {
	Algo         string
	FeatureNames []string
	TrainedAt    time.Time
	Metrics      map[string]float64
	Payload      []byte
}

type SaveOption func(*Envelope)

// WithMetrics records holdout scores in the artifact.
func WithMetrics(m map[string]float64) SaveOption {
	return func(e *Envelope) { e.Metrics = m }
}

const (
	AlgoDecisionTree     = "dt"
	AlgoRandomForest     = "rf"
	AlgoBagging          = "bagging"
	AlgoGradientBoosting = "gb"
	AlgoLinear           = "linear"
)

// New returns an untrained model for algo.
func New(algo string) (Model, error) {
	switch algo {
	case AlgoDecisionTree:
		return NewDecisionTree(), nil
	case AlgoRandomForest:
		return NewRandomForest(), nil
	case AlgoBagging:
		return NewBagging(), nil
	case AlgoGradientBoosting:
		return NewGradientBoosting(), nil
	case AlgoLinear:
		return NewLinearThreshold(), nil
	}
	return nil, errors.Newf("unknown algorithm %q", algo)
}

func algoOf(m Classifier) (string, error) {
	switch m.(type) {
	case *DecisionTree:
		return AlgoDecisionTree, nil
	case *RandomForest:
		return AlgoRandomForest, nil
	case *Bagging:
		return AlgoBagging, nil
	case *GradientBoosting:
		return AlgoGradientBoosting, nil
	case *LinearThreshold:
		return AlgoLinear, nil
	}
	return "", errors.Newf("unsupported model type %T", m)
}

func Save(w io.Writer, m Classifier, featureNames []string, opts ...SaveOption) error {
	algo, err := algoOf(m)
	if err != nil {
		return err
	}
	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(m); err != nil {
		return errors.Wrap(err, "encode model")
	}
	env := Envelope{Algo: algo, FeatureNames: featureNames, TrainedAt: time.Now().UTC(), Payload: payload.Bytes()}
	for _, o := range opts {
		o(&env)
	}
	return errors.Wrap(gob.NewEncoder(w).Encode(env), "encode envelope")
}

// SaveFile writes the artifact next to path and renames it into place, so a
// watcher never sees a half-written model.
func SaveFile(path string, m Classifier, featureNames []string, opts ...SaveOption) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".model-*.gob")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if err := Save(f, m, featureNames, opts...); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

func Load(r io.Reader) (Classifier, Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(r).Decode(&env); err != nil {
		return nil, env, errors.Wrap(err, "decode envelope")
	}
	m, err := New(env.Algo)
	if err != nil {
		return nil, env, err
	}
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(m); err != nil {
		return nil, env, errors.Wrapf(err, "decode %s model", env.Algo)
	}
	if m.NumFeatures() <= 0 {
		return nil, env, errors.Newf("%s model is not trained", env.Algo)
	}
	return m, env, nil
}

func LoadFile(path string) (Classifier, Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Envelope{}, err
	}
	defer f.Close()
	return Load(f)
}
