package analytics

// Package analytics is the entry point collaborators use to run the vitals
// pipeline: generate a dataset, detect anomalies, score the latest sample and
// derive insights.
//
// The Engine holds configuration only. Datasets are passed explicitly on
// every call, and the only mutation any call performs is Detect overwriting
// Sample.Anomaly. Callers that share a Dataset between goroutines must
// serialize Detect against readers.

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/insight"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/ml"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/report"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/scoring"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/signal"
	"github.com/kubilitics/kubilitics-vitals/internal/metrics"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
	"github.com/kubilitics/kubilitics-vitals/internal/tracing"
)

// Engine runs the analytics pipeline.
type Engine struct {
	generator       *signal.Generator
	detector        *ml.Detector
	outlierFraction float64
	logger          *zap.Logger
	now             func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the clock used for generation windows and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.generator = signal.NewGeneratorWithClock(now)
	}
}

// WithOutlierFraction overrides the injected outlier share.
func WithOutlierFraction(f float64) Option {
	return func(e *Engine) { e.outlierFraction = f }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine with the given detector options.
func NewEngine(detectorOpts ml.DetectorOptions, opts ...Option) (*Engine, error) {
	detector, err := ml.NewDetector(detectorOpts)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		generator:       signal.NewGenerator(),
		detector:        detector,
		outlierFraction: signal.DefaultOutlierFraction,
		logger:          zap.NewNop(),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DetectorOptions returns the active detector configuration.
func (e *Engine) DetectorOptions() ml.DetectorOptions {
	return e.detector.Options()
}

// Generate creates a synthetic dataset ending at the engine clock.
func (e *Engine) Generate(ctx context.Context, days, samplesPerDay int, seed int64) (*models.Dataset, error) {
	opts := signal.DefaultOptions(days, samplesPerDay, seed)
	opts.OutlierFraction = e.outlierFraction
	return e.GenerateWith(ctx, opts)
}

// GenerateWith creates a synthetic dataset from explicit options.
func (e *Engine) GenerateWith(ctx context.Context, opts signal.Options) (*models.Dataset, error) {
	_, span := tracing.StartSpan(ctx, "analytics.generate",
		attribute.Int("days", opts.Days),
		attribute.Int("samples_per_day", opts.SamplesPerDay),
		attribute.Int64("seed", opts.Seed),
	)
	defer span.End()

	ds, err := e.generator.Generate(opts)
	if err != nil {
		metrics.DatasetsGenerated.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.DatasetsGenerated.WithLabelValues("ok").Inc()
	metrics.SamplesGenerated.Add(float64(ds.Len()))
	e.logger.Debug("Generated dataset",
		zap.Int("samples", ds.Len()),
		zap.Int("outliers", len(ds.Outliers)),
		zap.Int64("seed", ds.Seed),
	)
	return ds, nil
}

// Detect labels anomalous samples in place.
func (e *Engine) Detect(ctx context.Context, ds *models.Dataset) (*ml.Detection, error) {
	_, span := tracing.StartSpan(ctx, "analytics.detect", attribute.Int("samples", ds.Len()))
	defer span.End()

	start := time.Now()
	res, err := e.detector.Detect(ds)
	metrics.DetectionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DetectionsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("Anomaly detection failed", zap.Error(err))
		return nil, err
	}

	if res.Insufficient {
		metrics.DetectionsTotal.WithLabelValues("insufficient").Inc()
		e.logger.Warn("Too few samples for anomaly detection, all flags cleared",
			zap.Int("samples", ds.Len()),
			zap.Int("min_samples", e.detector.Options().MinSamples),
		)
	} else {
		metrics.DetectionsTotal.WithLabelValues("ok").Inc()
	}
	if len(res.DegenerateColumns) > 0 {
		e.logger.Warn("Zero-variance feature columns standardized to 0",
			zap.Strings("columns", res.DegenerateColumns),
		)
	}

	metrics.AnomaliesFlagged.Add(float64(res.FlaggedCount()))
	span.SetAttributes(attribute.Int("flagged", res.FlaggedCount()))
	e.logger.Debug("Anomaly detection completed",
		zap.Int("flagged", res.FlaggedCount()),
		zap.Float64("threshold", res.Threshold),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

// Score computes the health score of the latest sample.
func (e *Engine) Score(ctx context.Context, ds *models.Dataset) (*scoring.HealthScore, error) {
	_, span := tracing.StartSpan(ctx, "analytics.score")
	defer span.End()

	hs, err := scoring.Score(ds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.LatestHealthScore.Set(hs.Overall)
	metrics.HealthScoresByTier.WithLabelValues(string(hs.Tier)).Inc()
	span.SetAttributes(attribute.Float64("overall", hs.Overall), attribute.String("tier", string(hs.Tier)))
	return hs, nil
}

// Insights evaluates the rule-based insights for the latest sample.
func (e *Engine) Insights(ctx context.Context, ds *models.Dataset) ([]insight.Insight, error) {
	_, span := tracing.StartSpan(ctx, "analytics.insights")
	defer span.End()

	insights, err := insight.Evaluate(ds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for _, in := range insights {
		metrics.InsightsEmitted.WithLabelValues(string(in.Category), string(in.Kind)).Inc()
	}
	return insights, nil
}

// Result pairs a report with the full detection it was built from.
type Result struct {
	Report    *report.Report
	Detection *ml.Detection
}

// Analyze runs detection, scoring and insights in order and bundles the
// results with the supplementary report sections.
func (e *Engine) Analyze(ctx context.Context, ds *models.Dataset) (*report.Report, error) {
	res, err := e.Run(ctx, ds)
	if err != nil {
		return nil, err
	}
	return res.Report, nil
}

// Run is Analyze that also returns the per-sample detection scores.
func (e *Engine) Run(ctx context.Context, ds *models.Dataset) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "analytics.analyze")
	defer span.End()

	det, err := e.Detect(ctx, ds)
	if err != nil {
		return nil, err
	}
	hs, err := e.Score(ctx, ds)
	if err != nil {
		return nil, err
	}
	insights, err := e.Insights(ctx, ds)
	if err != nil {
		return nil, err
	}
	rep, err := report.Build(ds, det, hs, insights, e.now())
	if err != nil {
		return nil, err
	}
	return &Result{Report: rep, Detection: det}, nil
}
