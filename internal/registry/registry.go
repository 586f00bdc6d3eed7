// Package registry owns the process-wide classifier. A Registry either holds
// one loaded model or is in degraded mode; readers never see anything in
// between because the reference is swapped atomically.
package registry

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"tabserve/internal/errors"
	"tabserve/internal/models"
)

// Capability is fixed when a model is loaded and never re-probed.
type Capability int

const (
	BinaryClassifier Capability = iota + 1
	ProbabilisticBinaryClassifier
)

func (c Capability) String() string {
	switch c {
	case BinaryClassifier:
		return "BinaryClassifier"
	case ProbabilisticBinaryClassifier:
		return "ProbabilisticBinaryClassifier"
	}
	return "unknown"
}

// Model is an immutable loaded classifier. Probabilistic is set exactly when
// Capability is ProbabilisticBinaryClassifier.
type Model struct {
	Classifier    models.Classifier
	Probabilistic models.ProbabilisticClassifier
	Capability    Capability
	Algo          string
	FeatureNames  []string
	Metrics       map[string]float64
	LoadedAt      time.Time
}

// Classify wraps a classifier with its capability.
func Classify(c models.Classifier) *Model {
	m := &Model{Classifier: c, Capability: BinaryClassifier, LoadedAt: time.Now().UTC()}
	if p, ok := c.(models.ProbabilisticClassifier); ok {
		m.Probabilistic = p
		m.Capability = ProbabilisticBinaryClassifier
	}
	return m
}

type Registry struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Model]
	onSwap  func(loaded bool)
}

func New(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{path: path, logger: logger}
}

// NewWithModel returns a registry already holding c.
func NewWithModel(c models.Classifier, logger *zap.Logger) *Registry {
	r := New("", logger)
	r.current.Store(Classify(c))
	return r
}

// OnSwap registers a callback invoked after every load attempt with whether a
// model is held. Must be set before Load or Watch.
func (r *Registry) OnSwap(fn func(loaded bool)) { r.onSwap = fn }

func (r *Registry) Path() string { return r.path }

// Load reads the model artifact. On failure the registry is left in degraded
// mode, a warning is logged and an error wrapping ErrModelUnavailable is
// returned; it is never fatal.
func (r *Registry) Load() error {
	m, err := r.read()
	if err != nil {
		r.current.Store(nil)
		r.logger.Warn("model not loaded, serving in degraded mode", zap.String("path", r.path), zap.Error(err))
		r.notify()
		return err
	}
	r.current.Store(m)
	r.logger.Info("model loaded",
		zap.String("path", r.path),
		zap.String("model", m.Classifier.Name()),
		zap.Stringer("capability", m.Capability),
		zap.Int("n_features", m.Classifier.NumFeatures()))
	r.notify()
	return nil
}

func (r *Registry) read() (*Model, error) {
	if r.path == "" {
		return nil, errors.Wrap(errors.ErrModelUnavailable, "no model path configured")
	}
	if _, err := os.Stat(r.path); err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrModelUnavailable), "model file %s", r.path)
	}
	c, env, err := models.LoadFile(r.path)
	if err != nil {
		return nil, errors.Wrapf(errors.Mark(err, errors.ErrModelUnavailable), "load model %s", r.path)
	}
	m := Classify(c)
	m.Algo = env.Algo
	m.FeatureNames = env.FeatureNames
	m.Metrics = env.Metrics
	return m, nil
}

func (r *Registry) notify() {
	if r.onSwap != nil {
		_, ok := r.Current()
		r.onSwap(ok)
	}
}

// Current returns the loaded model, or false in degraded mode.
func (r *Registry) Current() (*Model, bool) {
	m := r.current.Load()
	return m, m != nil
}

// Info is the /model_info view of the registry.
type Info struct {
	Status         string             `json:"status"`
	Message        string             `json:"message,omitempty"`
	ModelType      string             `json:"model_type,omitempty"`
	Algo           string             `json:"algo,omitempty"`
	Capability     string             `json:"capability,omitempty"`
	NFeatures      int                `json:"n_features,omitempty"`
	FeatureNames   []string           `json:"feature_names,omitempty"`
	Classes        []int              `json:"classes,omitempty"`
	LoadedAt       string             `json:"loaded_at,omitempty"`
	HoldoutMetrics map[string]float64 `json:"holdout_metrics,omitempty"`
}

func (r *Registry) Info() Info {
	m, ok := r.Current()
	if !ok {
		return Info{Status: "no_model", Message: "model is not loaded"}
	}
	return Info{
		Status:         "loaded",
		ModelType:      m.Classifier.Name(),
		Algo:           m.Algo,
		Capability:     m.Capability.String(),
		NFeatures:      m.Classifier.NumFeatures(),
		FeatureNames:   m.FeatureNames,
		Classes:        []int{0, 1},
		LoadedAt:       m.LoadedAt.Format(time.RFC3339),
		HoldoutMetrics: m.Metrics,
	}
}

// Watch reloads the model whenever its file is written or replaced, until ctx
// is done. A failed reload keeps the model that was already serving.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return errors.New("no model path to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create model dir %s", dir)
	}
	if err := w.Add(dir); err != nil {
		return errors.Wrapf(err, "watch %s", dir)
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("model watcher error", zap.Error(err))
		}
	}
}

func (r *Registry) reload() {
	m, err := r.read()
	if err != nil {
		r.logger.Warn("model reload failed, keeping current model", zap.String("path", r.path), zap.Error(err))
		return
	}
	r.current.Store(m)
	r.logger.Info("model reloaded", zap.String("path", r.path), zap.String("model", m.Classifier.Name()))
	r.notify()
}
