package main

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"tabserve/internal/errors"
	"tabserve/internal/models"
	"tabserve/internal/report"
)

type scores struct {
	Accuracy      float64
	Precision     float64
	Recall        float64
	F1            float64
	ROCAUC        float64
	BestThreshold float64
}

func (s scores) Map() map[string]float64 {
	return map[string]float64{
		"accuracy":  s.Accuracy,
		"precision": s.Precision,
		"recall":    s.Recall,
		"f1":        s.F1,
		"roc_auc":   s.ROCAUC,
	}
}

// scoresOf returns the positive-class score per row: the probability when
// the model has one, the label otherwise.
func scoresOf(m models.Classifier, X [][]float64) ([]float64, error) {
	if p, ok := m.(models.ProbabilisticClassifier); ok {
		return p.PredictProba(X)
	}
	labels, err := m.Predict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(labels))
	for i, l := range labels {
		out[i] = float64(l)
	}
	return out, nil
}

func evaluate(m models.Classifier, X [][]float64, y []int) (scores, error) {
	ps, err := scoresOf(m, X)
	if err != nil {
		return scores{}, errors.Wrapf(err, "score %s", m.Name())
	}
	labels, err := m.Predict(X)
	if err != nil {
		return scores{}, errors.Wrapf(err, "predict %s", m.Name())
	}
	c := report.ConfusionAt(y, ps, 0.5)
	thr, _ := report.BestF1Threshold(y, ps)
	return scores{
		Accuracy:      report.Accuracy(y, labels),
		Precision:     c.Precision(),
		Recall:        c.Recall(),
		F1:            c.F1(),
		ROCAUC:        report.ROCAUC(y, ps),
		BestThreshold: thr,
	}, nil
}

// learningCurve retrains a fresh model on growing prefixes of the training
// set and plots train and holdout scores.
func learningCurve(logger *zap.Logger, o options, Xtrain [][]float64, ytrain []int, Xtest [][]float64, ytest []int) error {
	lc := report.NewLearningCurve(report.CurveSizes(len(Xtrain), o.curvePoints, o.curveMin, o.curveLog))
	for k, size := range lc.Sizes {
		m, err := build(o)
		if err != nil {
			return err
		}
		if err := m.Fit(Xtrain[:size], ytrain[:size]); err != nil {
			return errors.Wrapf(err, "fit at size %d", size)
		}
		tr, err := evaluate(m, Xtrain[:size], ytrain[:size])
		if err != nil {
			return err
		}
		te, err := evaluate(m, Xtest, ytest)
		if err != nil {
			return err
		}
		lc.TrainAcc[k], lc.TestAcc[k] = tr.Accuracy, te.Accuracy
		lc.TrainF1[k], lc.TestF1[k] = tr.F1, te.F1
		lc.TrainROC[k], lc.TestROC[k] = tr.ROCAUC, te.ROCAUC
		logger.Debug("curve point", zap.Int("size", size), zap.Float64("holdout_acc", te.Accuracy))
	}

	if err := lc.SavePNG(o.curve); err != nil {
		return err
	}
	csvPath := strings.TrimSuffix(o.curve, filepath.Ext(o.curve)) + ".csv"
	f, err := os.Create(csvPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", csvPath)
	}
	defer f.Close()
	if err := lc.WriteCSV(f); err != nil {
		return errors.Wrapf(err, "write %s", csvPath)
	}
	logger.Info("learning curve written", zap.String("png", o.curve), zap.String("csv", csvPath))
	return nil
}
