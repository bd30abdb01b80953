package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trustwatch/internal/config"
	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/services"
	"trustwatch/internal/services/hackatime"
	"trustwatch/internal/trust"
)

// Saver persists a completed snapshot, replacing any previous one.
type Saver interface {
	Save(ctx context.Context, snap trust.Snapshot) error
}

// Result summarizes a completed scan.
type Result struct {
	RunID            string              `json:"runId"`
	StartedAt        time.Time           `json:"startedAt"`
	FinishedAt       time.Time           `json:"finishedAt"`
	Totals           map[trust.Group]int `json:"totals"`
	ClassifyDuration time.Duration       `json:"classifyDurationNs"`
	ResolveDuration  time.Duration       `json:"resolveDurationNs"`
}

// Duration returns the wall time of the run.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Pipeline runs classify, resolve, and save as one unit.
type Pipeline struct {
	classifier *Classifier
	resolver   *Resolver
	store      Saver
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewPipeline wires the scan phases together.
func NewPipeline(classifier *Classifier, resolver *Resolver, store Saver, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		resolver:   resolver,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "scan"),
		metrics:    m,
	}
}

// NewPipelineFromConfig builds a pipeline backed by the users API client.
func NewPipelineFromConfig(cfg *config.Config, store Saver, logger *slog.Logger, m *metrics.Metrics) (*Pipeline, error) {
	client, err := hackatime.New(cfg.API.BaseURL,
		hackatime.WithTimeout(cfg.APITimeout()),
		hackatime.WithUserAgent(cfg.API.UserAgent),
	)
	if err != nil {
		return nil, fmt.Errorf("users api client: %w", err)
	}
	classifier := NewClassifier(client, ClassifierOptions{
		MaxID:         cfg.Scan.MaxID,
		Workers:       cfg.Scan.ScanConcurrency,
		Rules:         cfg.Rules(),
		ProgressEvery: cfg.Scan.ScanProgressEvery,
	}, logger, m)
	resolver := NewResolver(client, ResolverOptions{
		Workers:       cfg.Scan.StatsConcurrency,
		Attempts:      cfg.Scan.LabelAttempts,
		RetryDelay:    cfg.LabelRetryDelay(),
		ProgressEvery: cfg.Scan.LabelProgressEvery,
	}, logger, m)
	return NewPipeline(classifier, resolver, store, logger, m), nil
}

// Run performs one scan and overwrites the stored snapshot. A cancelled
// context aborts the run before anything is written.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	result := Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	ctx = services.WithRunID(ctx, result.RunID)
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("scan started", logging.String(logging.FieldEventType, "scan_start"))

	membership := p.classifier.Classify(services.WithPhase(ctx, "classify"))
	result.ClassifyDuration = time.Since(result.StartedAt)
	if err := ctx.Err(); err != nil {
		return p.fail(logger, result, fmt.Errorf("classify: %w", err))
	}

	resolveStart := time.Now()
	snap := p.resolver.Resolve(services.WithPhase(ctx, "resolve"), membership)
	result.ResolveDuration = time.Since(resolveStart)
	if err := ctx.Err(); err != nil {
		return p.fail(logger, result, fmt.Errorf("resolve: %w", err))
	}

	saveStart := time.Now()
	if err := p.store.Save(ctx, snap); err != nil {
		return p.fail(logger, result, fmt.Errorf("save snapshot: %w", err))
	}
	p.metrics.ObservePhase("save", time.Since(saveStart))

	result.Totals = snap.Totals()
	result.FinishedAt = time.Now()
	for _, group := range trust.Groups {
		p.metrics.SetGroupSize(string(group), result.Totals[group])
	}
	p.metrics.ObserveScan(true, result.Duration())
	logger.Info("scan complete",
		logging.String(logging.FieldEventType, "scan_complete"),
		logging.Int(string(trust.GroupPrimary), result.Totals[trust.GroupPrimary]),
		logging.Int(string(trust.GroupSecondary), result.Totals[trust.GroupSecondary]),
		logging.Duration("duration", result.Duration()),
	)
	return result, nil
}

func (p *Pipeline) fail(logger *slog.Logger, result Result, err error) (Result, error) {
	result.FinishedAt = time.Now()
	p.metrics.ObserveScan(false, result.Duration())
	logging.ErrorWithContext(logger, "scan failed", "scan_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "previous snapshot left untouched; next scheduled scan will retry"),
	)
	return result, err
}
