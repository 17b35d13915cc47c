package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// ExpertRouter fans one query out to N independent expert personas and
// collects every answer keyed by expert name. One expert's failure never
// blocks or fails the others.
type ExpertRouter struct {
	experts map[string]StageRunner
	logger  *slog.Logger
}

// NewExpertRouter builds a router over the given experts, keyed by the name
// their result should carry.
func NewExpertRouter(experts map[string]StageRunner, logger *slog.Logger) *ExpertRouter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExpertRouter{experts: experts, logger: logger}
}

// Route runs all experts concurrently against the same query. Failures are
// captured as that expert's own error text; the call itself never fails.
func (r *ExpertRouter) Route(ctx context.Context, query string) map[string]string {
	results := make(map[string]string, len(r.experts))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, expert := range r.experts {
		wg.Add(1)
		go func(name string, expert StageRunner) {
			defer wg.Done()
			text := r.ask(ctx, name, expert, query)
			mu.Lock()
			results[name] = text
			mu.Unlock()
		}(name, expert)
	}
	wg.Wait()

	return results
}

func (r *ExpertRouter) ask(ctx context.Context, name string, expert StageRunner, query string) string {
	res, err := expert.Run(ctx, query)
	if err != nil {
		r.logger.Error("expert failed", "expert", name, "error", err)
		return "Error: " + err.Error()
	}
	if !res.OK() {
		r.logger.Warn("expert run unsuccessful", "expert", name, "error", res.Err)
		return "Error: " + res.Err
	}
	return res.Text
}
