package trace

import (
	"context"
	"io"
	"log/slog"
	"time"

	"ragchat/internal/domain"
)

// RunFunc executes one stage against a query and returns its text output.
type RunFunc func(ctx context.Context, query string) (string, error)

// StageTracer wraps stage executions to record timing, success and a
// token/cost estimate without altering the stage's observable output.
type StageTracer struct {
	estimator *CostEstimator
	logger    *slog.Logger
}

// NewStageTracer builds a tracer around the given estimator.
func NewStageTracer(estimator *CostEstimator, logger *slog.Logger) *StageTracer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StageTracer{estimator: estimator, logger: logger}
}

// Traced runs fn(query) and returns its output together with a trace record.
// Failures are absorbed into the record, never propagated: the returned
// string is empty on failure and the caller chooses its fallback.
func (t *StageTracer) Traced(ctx context.Context, stageName, query string, fn RunFunc) (string, domain.StageTrace) {
	rec := domain.StageTrace{
		Stage: stageName,
		Start: time.Now(),
	}

	out, err := fn(ctx, query)
	rec.End = time.Now()

	if err != nil {
		rec.Success = false
		rec.Error = err.Error()
		t.logger.Warn("stage failed",
			"stage", stageName,
			"duration", rec.Duration(),
			"error", err,
		)
		return "", rec
	}

	rec.Success = true
	rec.Tokens, rec.Cost = t.estimator.Estimate(query, out)
	t.logger.Debug("stage completed",
		"stage", stageName,
		"duration", rec.Duration(),
		"tokens", rec.Tokens,
	)
	return out, rec
}
