package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tabserve/internal/data"
	"tabserve/internal/errors"
	"tabserve/internal/models"
	"tabserve/pkg/utils"
)

type options struct {
	algo        string
	n           int
	seed        int64
	out         string
	sample      string
	estimators  int
	maxDepth    int
	minSamples  int
	lr          float64
	curve       string
	curvePoints int
	curveMin    int
	curveLog    bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "Train a binary classifier on synthetic data and save the model artifact",
	Long: `trainer fits one of the built-in tree or linear classifiers on a synthetic
dataset, reports holdout scores, and writes a model artifact the server
can load, along with a sample CSV to upload.

Examples:
  trainer --algo rf --out models/model.gob
  trainer --algo gb --estimators 80 --curve reports/learning_curve.png`,
	SilenceUsage: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		logger := utils.Logger()
		defer func() { _ = logger.Sync() }()
		return train(logger, opts)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.algo, "algo", models.AlgoRandomForest, "algorithm: dt|rf|bagging|gb|linear")
	f.IntVar(&opts.n, "n", 1000, "synthetic rows")
	f.Int64Var(&opts.seed, "seed", 42, "random seed for data and split")
	f.StringVar(&opts.out, "out", filepath.Join("models", "model.gob"), "model artifact path")
	f.StringVar(&opts.sample, "sample", filepath.Join("data", "sample.csv"), "sample upload CSV path, empty to skip")
	f.IntVar(&opts.estimators, "estimators", 0, "ensemble size (rf, bagging, gb); 0 keeps the default")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "tree depth (dt, rf, bagging); 0 keeps the default")
	f.IntVar(&opts.minSamples, "min-samples", 0, "minimum samples per split; 0 keeps the default")
	f.Float64Var(&opts.lr, "lr", 0, "learning rate (gb); 0 keeps the default")
	f.StringVar(&opts.curve, "curve", "", "write a learning curve PNG here, with a CSV next to it")
	f.IntVar(&opts.curvePoints, "curve-points", 8, "points on the learning curve")
	f.IntVar(&opts.curveMin, "curve-min", 50, "smallest training size on the curve")
	f.BoolVar(&opts.curveLog, "curve-log", true, "space curve sizes geometrically")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func train(logger *zap.Logger, o options) error {
	X, y := data.GenerateSynthetic(o.n, len(data.FeatureNames), o.seed)
	Xtrain, ytrain, Xtest, ytest := split(X, y, 0.8, o.seed)
	logger.Info("dataset ready",
		zap.Int("train", len(Xtrain)),
		zap.Int("holdout", len(Xtest)),
		zap.Int("positives", count(y, 1)))

	m, err := build(o)
	if err != nil {
		return err
	}
	if err := m.Fit(Xtrain, ytrain); err != nil {
		return errors.Wrapf(err, "train %s", m.Name())
	}

	sc, err := evaluate(m, Xtest, ytest)
	if err != nil {
		return err
	}
	logger.Info("holdout metrics",
		zap.String("model", m.Name()),
		zap.Float64("accuracy", sc.Accuracy),
		zap.Float64("precision", sc.Precision),
		zap.Float64("recall", sc.Recall),
		zap.Float64("f1", sc.F1),
		zap.Float64("roc_auc", sc.ROCAUC),
		zap.Float64("best_f1_threshold", sc.BestThreshold))

	if err := models.SaveFile(o.out, m, data.FeatureNames, models.WithMetrics(sc.Map())); err != nil {
		return errors.Wrapf(err, "save model to %s", o.out)
	}
	logger.Info("model saved", zap.String("path", o.out), zap.String("algo", o.algo))

	if o.sample != "" {
		if err := data.WriteSampleCSVFile(o.sample); err != nil {
			return errors.Wrapf(err, "write sample to %s", o.sample)
		}
		logger.Info("sample written", zap.String("path", o.sample))
	}

	if o.curve != "" {
		if err := learningCurve(logger, o, Xtrain, ytrain, Xtest, ytest); err != nil {
			logger.Warn("learning curve failed", zap.Error(err))
		}
	}
	return nil
}

// build returns an untrained model for o.algo with any overridden
// hyperparameters applied.
func build(o options) (models.Model, error) {
	m, err := models.New(o.algo)
	if err != nil {
		return nil, errors.WithHint(err, "use one of dt, rf, bagging, gb, linear")
	}
	switch t := m.(type) {
	case *models.DecisionTree:
		setIf(&t.MaxDepth, o.maxDepth)
		setIf(&t.MinSamplesSplit, o.minSamples)
	case *models.RandomForest:
		setIf(&t.NEstimators, o.estimators)
		setIf(&t.MaxDepth, o.maxDepth)
		setIf(&t.MinSamples, o.minSamples)
	case *models.Bagging:
		setIf(&t.NEstimators, o.estimators)
		setIf(&t.MaxDepth, o.maxDepth)
		setIf(&t.MinSamples, o.minSamples)
	case *models.GradientBoosting:
		setIf(&t.NEstimators, o.estimators)
		setIf(&t.MinSamples, o.minSamples)
		if o.lr > 0 {
			t.LearningRate = o.lr
		}
	}
	return m, nil
}

func setIf(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// split shuffles with seed and keeps the class ratio in both parts.
func split(X [][]float64, y []int, frac float64, seed int64) (Xtr [][]float64, ytr []int, Xte [][]float64, yte []int) {
	rng := rand.New(rand.NewSource(seed))
	var pos, neg []int
	for i, label := range y {
		if label == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	var trainIdx, testIdx []int
	for _, group := range [][]int{pos, neg} {
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		cut := int(frac * float64(len(group)))
		trainIdx = append(trainIdx, group[:cut]...)
		testIdx = append(testIdx, group[cut:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	for _, i := range trainIdx {
		Xtr = append(Xtr, X[i])
		ytr = append(ytr, y[i])
	}
	for _, i := range testIdx {
		Xte = append(Xte, X[i])
		yte = append(yte, y[i])
	}
	return Xtr, ytr, Xte, yte
}

func count(y []int, label int) int {
	c := 0
	for _, v := range y {
		if v == label {
			c++
		}
	}
	return c
}
