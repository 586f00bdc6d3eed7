// Package service runs one upload through the prediction pipeline:
// Received, Parsed, Predicted, Persisted, Responded. A failure stops the run
// in the Error state and reports the state it was in.
package service

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"tabserve/internal/errors"
	"tabserve/internal/ingest"
	"tabserve/internal/metrics"
	"tabserve/internal/predict"
	"tabserve/internal/store"
)

type Stage string

const (
	StageReceived  Stage = "received"
	StageParsed    Stage = "parsed"
	StagePredicted Stage = "predicted"
	StagePersisted Stage = "persisted"
	StageResponded Stage = "responded"
	StageFailed    Stage = "error"
)

// StageError is returned by Handle. Stage is the last state the request
// reached before failing.
type StageError struct {
	Stage Stage
	Kind  errors.Kind
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Kind) + " after " + string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

type Request struct {
	ID          string
	Filename    string
	ContentType string
	Body        io.Reader
	// Format overrides detection from Filename and ContentType.
	Format ingest.Format
}

// Response is the JSON body of a successful prediction.
type Response struct {
	Status        string               `json:"status"`
	Predictions   []int                `json:"predictions"`
	Probabilities []float64            `json:"probabilities"`
	IDs           []any                `json:"ids"`
	Count         int                  `json:"count"`
	Distribution  predict.Distribution `json:"distribution"`
	Degraded      bool                 `json:"degraded"`
	Model         string               `json:"model,omitempty"`
	Artifact      string               `json:"artifact"`
}

type Options struct {
	StagingDir     string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	MaxConcurrent  int64
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

type Pipeline struct {
	engine  *predict.Engine
	store   store.Store
	opts    Options
	sem     *semaphore.Weighted
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(engine *predict.Engine, st store.Store, opts Options) *Pipeline {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	p := &Pipeline{
		engine:  engine,
		store:   st,
		opts:    opts,
		sem:     semaphore.NewWeighted(opts.MaxConcurrent),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	return p
}

// run tracks one request through the states.
type run struct {
	p        *Pipeline
	logger   *zap.Logger
	endpoint string
	stage    Stage
	mark     time.Time
}

func (r *run) advance(to Stage) {
	now := time.Now()
	r.p.metrics.RecordStage(string(to), now.Sub(r.mark).Seconds())
	r.logger.Debug("pipeline stage", zap.String("from", string(r.stage)), zap.String("to", string(to)))
	r.stage, r.mark = to, now
}

func (r *run) fail(err error) error {
	se := &StageError{Stage: r.stage, Kind: errors.KindOf(err), Err: err}
	r.p.metrics.RecordOutcome(r.endpoint, string(se.Kind))
	fields := []zap.Field{zap.String("stage", string(r.stage)), zap.String("kind", string(se.Kind)), zap.Error(err)}
	switch errors.HTTPStatus(se.Kind) / 100 {
	case 5:
		r.logger.Error("pipeline failed", fields...)
	default:
		r.logger.Warn("pipeline rejected upload", fields...)
	}
	r.stage = StageFailed
	return se
}

// Handle stages, parses, predicts and persists one upload. Errors are always
// *StageError.
func (p *Pipeline) Handle(ctx context.Context, endpoint string, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	r := &run{
		p:        p,
		logger:   p.logger.With(zap.String("request_id", req.ID), zap.String("endpoint", endpoint), zap.String("file", req.Filename)),
		endpoint: endpoint,
		stage:    StageReceived,
		mark:     time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Response{}, r.fail(errors.Wrap(errors.Mark(err, errors.ErrBusy), "wait for pipeline slot"))
	}
	p.metrics.Inflight.Inc()
	// The slot is held by this call and, once prediction starts, by the model
	// computation too. A model that outlives a timeout keeps the slot until
	// it returns.
	var holders atomic.Int32
	holders.Store(1)
	drop := func() {
		if holders.Add(-1) == 0 {
			p.metrics.Inflight.Dec()
			p.sem.Release(1)
		}
	}
	defer drop()

	staged, err := ingest.Stage(p.opts.StagingDir, req.Body, p.opts.MaxUploadBytes)
	if err != nil {
		return Response{}, r.fail(err)
	}
	defer func() {
		if err := staged.Close(); err != nil {
			r.logger.Warn("staging cleanup failed", zap.String("path", staged.Path()), zap.Error(err))
		}
	}()

	raw, err := staged.Bytes()
	if err != nil {
		return Response{}, r.fail(err)
	}
	format := req.Format
	if format == 0 {
		format = ingest.FormatFor(req.Filename, req.ContentType)
	}
	frame, err := ingest.Parse(raw, format)
	if err != nil {
		return Response{}, r.fail(err)
	}
	r.advance(StageParsed)

	holders.Add(1)
	res, err := p.engine.PredictNotify(ctx, frame, drop)
	if err != nil {
		return Response{}, r.fail(err)
	}
	r.advance(StagePredicted)
	p.metrics.RecordPrediction(res.Distribution.Class0, res.Distribution.Class1, res.Degraded)

	payload := store.Payload{
		Status:        "success",
		Predictions:   res.Labels,
		Probabilities: res.Probabilities,
		IDs:           frame.IDs,
		Count:         frame.Len(),
		Distribution:  res.Distribution,
		Degraded:      res.Degraded,
		Model:         res.Model,
		SourceFile:    req.Filename,
	}
	art, err := p.store.Persist(ctx, payload)
	if err != nil {
		return Response{}, r.fail(errors.Mark(err, errors.ErrStorage))
	}
	r.advance(StagePersisted)
	p.metrics.ArtifactsPersisted.Inc()

	resp := Response{
		Status:        payload.Status,
		Predictions:   payload.Predictions,
		Probabilities: payload.Probabilities,
		IDs:           payload.IDs,
		Count:         payload.Count,
		Distribution:  payload.Distribution,
		Degraded:      payload.Degraded,
		Model:         payload.Model,
		Artifact:      art.Name,
	}
	r.advance(StageResponded)
	p.metrics.RecordOutcome(endpoint, "ok")
	r.logger.Info("prediction served",
		zap.Int("rows", resp.Count),
		zap.Bool("degraded", resp.Degraded),
		zap.String("artifact", art.Name))
	return resp, nil
}
