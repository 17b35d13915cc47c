package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/usecase/runner"
)

// ToolRouter answers queries through a single tool-enabled orchestrator
// persona. The persona decides which experts to consult; their answers come
// back as tool outputs and also surface in the result map.
type ToolRouter struct {
	runner     StageRunner
	dispatcher *runner.ToolDispatcher
	logger     *slog.Logger

	// one tool-routed ask at a time: the dispatcher's collected outputs
	// belong to a single run.
	mu sync.Mutex
}

// NewToolRouter wires the orchestrator runner to its dispatcher. The runner
// must have been constructed with the same dispatcher.
func NewToolRouter(r StageRunner, dispatcher *runner.ToolDispatcher, logger *slog.Logger) *ToolRouter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ToolRouter{runner: r, dispatcher: dispatcher, logger: logger}
}

// Ask runs one query through the orchestrator persona and returns its final
// text plus each consulted expert's answer keyed by expert name.
func (t *ToolRouter) Ask(ctx context.Context, query string) (string, map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dispatcher.Reset()

	res, err := t.runner.Run(ctx, query)
	experts := t.dispatcher.Outputs()
	if err != nil {
		return "", experts, err
	}
	if !res.OK() {
		return "", experts, fmt.Errorf("%w: %s", domain.ErrRunFailed, res.Err)
	}

	t.logger.Info("tool-routed query answered", "experts_consulted", len(experts))
	return res.Text, experts, nil
}
