package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"ragchat/internal/domain"
	"ragchat/internal/usecase/trace"
)

// StageRunner executes one query against one persona. Satisfied by
// *runner.Runner.
type StageRunner interface {
	Run(ctx context.Context, query string) (domain.RunResult, error)
}

// Stage-specific fallback texts. A failed stage degrades to its fallback as
// input for the next stage instead of aborting the pipeline.
const (
	intakeFallback   = "analysis failed"
	searchFallback   = "search failed"
	writerFallback   = "draft failed"
	reviewerFallback = "review failed"
)

// Stages holds the per-stage runners of the pipeline. ReviewExecute is only
// consulted when PipelineOptions.CombineReviewExecute is set.
type Stages struct {
	Intake        StageRunner
	Search        StageRunner
	Writer        StageRunner
	Reviewer      StageRunner
	Executor      StageRunner
	ReviewExecute StageRunner
}

// PipelineOptions tune pipeline composition.
type PipelineOptions struct {
	// CombineReviewExecute collapses the Reviewer and Executor stages into
	// one combined stage, producing a four-stage trace.
	CombineReviewExecute bool
}

// Pipeline runs the fixed Intake, Search, Writer, Reviewer, Executor
// sequence, feeding each stage's output into the next stage's prompt.
type Pipeline struct {
	stages Stages
	tracer *trace.StageTracer
	opts   PipelineOptions
	logger *slog.Logger
}

// NewPipeline assembles the pipeline.
func NewPipeline(stages Stages, tracer *trace.StageTracer, opts PipelineOptions, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pipeline{stages: stages, tracer: tracer, opts: opts, logger: logger}
}

// Run executes the pipeline and returns the best achievable final text plus
// a trace with one record per attempted stage. Partial traces are valid:
// a fatal resolution error truncates the pipeline but the trace still covers
// every stage attempted so far.
func (p *Pipeline) Run(ctx context.Context, query string) (string, *domain.PipelineTrace) {
	pt := &domain.PipelineTrace{
		ID:    ulid.Make().String(),
		Query: query,
		Start: time.Now(),
	}
	defer func() { pt.End = time.Now() }()

	p.logger.Info("pipeline started", "trace_id", pt.ID)

	_, fatal := p.runStage(ctx, pt, IntakeAgentName, p.stages.Intake, query, intakeFallback)
	if fatal != nil {
		return p.abort(pt, fatal)
	}

	searchOut, fatal := p.runStage(ctx, pt, SearchAgentName, p.stages.Search,
		"retrieve relevant info for: "+query, searchFallback)
	if fatal != nil {
		return p.abort(pt, fatal)
	}

	draft, fatal := p.runStage(ctx, pt, WriterAgentName, p.stages.Writer,
		"draft using: "+searchOut, writerFallback)
	if fatal != nil {
		return p.abort(pt, fatal)
	}

	if p.opts.CombineReviewExecute {
		return p.finishCombined(ctx, pt, draft, searchOut)
	}

	review, fatal := p.runStage(ctx, pt, ReviewerAgentName, p.stages.Reviewer,
		"review: "+draft+"\n\n"+searchOut, reviewerFallback)
	if fatal != nil {
		return p.abort(pt, fatal)
	}

	final, fatal := p.runStage(ctx, pt, ExecutorAgentName, p.stages.Executor,
		"format: "+draft+"\n\n"+review, draft)
	if fatal != nil {
		return p.abort(pt, fatal)
	}

	p.logger.Info("pipeline finished",
		"trace_id", pt.ID,
		"success", pt.Success(),
		"tokens", pt.TotalTokens(),
	)
	return final, pt
}

// finishCombined runs the four-stage variant's combined review-and-format
// stage. Its failure falls back to the Writer draft, like Executor's.
func (p *Pipeline) finishCombined(ctx context.Context, pt *domain.PipelineTrace, draft, searchOut string) (string, *domain.PipelineTrace) {
	final, fatal := p.runStage(ctx, pt, ReviewExecuteName, p.stages.ReviewExecute,
		"review and format: "+draft+"\n\n"+searchOut, draft)
	if fatal != nil {
		return p.abort(pt, fatal)
	}
	return final, pt
}

// runStage executes one traced stage. A stage failure returns the fallback
// text and a nil error so the pipeline continues on degraded input; only a
// resolution error (configuration class, nothing to degrade around) comes
// back as fatal.
func (p *Pipeline) runStage(ctx context.Context, pt *domain.PipelineTrace, name string, r StageRunner, input, fallback string) (string, error) {
	var fatal error

	out, rec := p.tracer.Traced(ctx, name, input, func(ctx context.Context, q string) (string, error) {
		res, err := r.Run(ctx, q)
		if err != nil {
			if errors.Is(err, domain.ErrAgentResolution) {
				fatal = err
			}
			return "", err
		}
		if !res.OK() {
			return "", fmt.Errorf("%s", res.Err)
		}
		return res.Text, nil
	})
	pt.Append(rec)

	if fatal != nil {
		return "", fatal
	}
	if !rec.Success {
		p.logger.Warn("stage degraded to fallback", "stage", name, "fallback", fallback)
		return fallback, nil
	}
	return out, nil
}

// abort ends the pipeline early on a fatal error. The trace keeps the
// stages attempted so far.
func (p *Pipeline) abort(pt *domain.PipelineTrace, err error) (string, *domain.PipelineTrace) {
	p.logger.Error("pipeline aborted",
		"trace_id", pt.ID, "error", err, "code", domain.ErrorCodeOf(err),
	)
	return "pipeline failed: " + err.Error(), pt
}
