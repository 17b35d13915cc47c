package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ragchat/internal/domain"
	"ragchat/internal/infra/config"
	"ragchat/internal/infra/tracer"
)

// Dispatcher resolves the tool calls a run emits while in
// requires_tool_output. Implementations must be safe for concurrent calls.
type Dispatcher interface {
	Dispatch(ctx context.Context, calls []domain.ToolCallRequest) []domain.ToolCallResult
}

// Runner executes queries against one persona, hiding agent resolution,
// conversation lifecycle and run polling from callers. One Runner per
// persona, reused across requests.
type Runner struct {
	client     domain.AgentServiceClient
	persona    domain.AgentPersona
	dispatcher Dispatcher // nil for tool-less personas
	logger     *slog.Logger

	pollInterval  time.Duration
	pollTimeout   time.Duration
	maxToolRounds int

	// resolve-once guard: a persona resolves to at most one handle per
	// process lifetime.
	mu     sync.Mutex
	handle *domain.AgentHandle

	// stateful personas reuse one conversation across queries; the mutex
	// also serializes runs so a conversation never hosts two at once.
	convMu         sync.Mutex
	conversationID string
}

// New creates a Runner for one persona. dispatcher may be nil when the
// persona carries no tools.
func New(client domain.AgentServiceClient, persona domain.AgentPersona, cfg config.RunnerConfig, dispatcher Dispatcher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 120 * time.Second
	}
	maxRounds := cfg.MaxToolRounds
	if maxRounds <= 0 {
		maxRounds = 8
	}

	return &Runner{
		client:        client,
		persona:       persona,
		dispatcher:    dispatcher,
		logger:        logger,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		maxToolRounds: maxRounds,
	}
}

// Persona returns the persona this runner executes.
func (r *Runner) Persona() domain.AgentPersona { return r.persona }

// Resolve binds the persona to an external registration, in priority order:
// cached handle, pre-supplied external id (optionally validated), lookup by
// name, create. The result is memoized for the process lifetime.
func (r *Runner) Resolve(ctx context.Context) (domain.AgentHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle != nil {
		return *r.handle, nil
	}

	if !r.persona.Valid() {
		return domain.AgentHandle{}, domain.NewDomainError("Runner.Resolve", domain.ErrInvalidInput,
			fmt.Sprintf("persona %q needs a name and prompt or an external id", r.persona.Name))
	}

	handle, err := r.resolve(ctx)
	if err != nil {
		return domain.AgentHandle{}, err
	}

	r.handle = &handle
	r.logger.Info("persona resolved", "persona", r.persona.Name, "agent_id", handle.ID)
	return handle, nil
}

func (r *Runner) resolve(ctx context.Context) (domain.AgentHandle, error) {
	op := "Runner.Resolve"

	if id := r.persona.ExternalID; id != "" {
		if !r.persona.ValidateID {
			return domain.AgentHandle{ID: id, Name: r.persona.Name}, nil
		}
		rec, err := r.client.GetAgent(ctx, id)
		if err == nil {
			return domain.AgentHandle{ID: rec.ID, Name: rec.Name}, nil
		}
		// Validation failure falls through to name-based resolution.
		r.logger.Warn("pre-provisioned agent id failed validation",
			"persona", r.persona.Name, "agent_id", id, "error", err,
		)
	}

	rec, err := r.client.FindAgentByName(ctx, r.persona.Name)
	if err != nil {
		return domain.AgentHandle{}, domain.NewDomainError(op, domain.ErrAgentResolution, err.Error())
	}
	if rec != nil {
		return domain.AgentHandle{ID: rec.ID, Name: rec.Name}, nil
	}

	created, err := r.client.CreateAgent(ctx, domain.AgentSpec{
		Model:        r.persona.Model,
		Name:         r.persona.Name,
		Instructions: r.persona.SystemPrompt,
		Tools:        r.persona.Tools,
	})
	if err != nil {
		return domain.AgentHandle{}, domain.NewDomainError(op, domain.ErrAgentResolution, err.Error())
	}
	return domain.AgentHandle{ID: created.ID, Name: created.Name}, nil
}

// Run executes one query. Resolution and input errors return as Go errors;
// everything past resolution (transport faults, failed runs, missing
// content) is absorbed into the RunResult so callers can degrade per stage.
func (r *Runner) Run(ctx context.Context, query string) (domain.RunResult, error) {
	if query == "" {
		return domain.RunResult{}, domain.NewDomainError("Runner.Run", domain.ErrInvalidInput, "empty query")
	}

	handle, err := r.Resolve(ctx)
	if err != nil {
		return domain.RunResult{}, err
	}

	ctx, span := tracer.StartSpan(ctx, "runner.run",
		trace.WithAttributes(tracer.StringAttr("persona", r.persona.Name)),
	)
	defer span.End()

	if r.persona.Stateful {
		r.convMu.Lock()
		defer r.convMu.Unlock()

		if r.conversationID == "" {
			convID, err := r.client.CreateConversation(ctx)
			if err != nil {
				tracer.RecordError(span, err)
				return domain.FailedResult("create conversation: " + err.Error()), nil
			}
			r.conversationID = convID
		}
		res := r.execute(ctx, r.conversationID, handle, query)
		spanResult(span, res)
		return res, nil
	}

	convID, err := r.client.CreateConversation(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.FailedResult("create conversation: " + err.Error()), nil
	}
	res := r.execute(ctx, convID, handle, query)
	spanResult(span, res)
	return res, nil
}

func spanResult(span trace.Span, res domain.RunResult) {
	if res.OK() {
		tracer.SetOK(span)
		return
	}
	tracer.RecordError(span, fmt.Errorf("run ended %s: %s", res.Status, res.Err))
}

// execute drives one post-message / start-run / poll cycle on an existing
// conversation. All faults come back as RunResult values.
func (r *Runner) execute(ctx context.Context, conversationID string, handle domain.AgentHandle, query string) domain.RunResult {
	if err := r.client.PostMessage(ctx, conversationID, domain.RoleUser, query); err != nil {
		return domain.FailedResult("post message: " + err.Error())
	}

	run, err := r.client.StartRun(ctx, conversationID, handle.ID)
	if err != nil {
		return domain.FailedResult("start run: " + err.Error())
	}

	deadline := time.Now().Add(r.pollTimeout)
	rounds := 0

	for {
		switch {
		case run.Status.Transient():
			if time.Now().After(deadline) {
				r.logger.Warn("run poll timeout",
					"persona", r.persona.Name, "run_id", run.ID, "timeout", r.pollTimeout,
				)
				return domain.FailedResult(fmt.Sprintf("%s after %s", domain.ErrPollTimeout, r.pollTimeout))
			}
			select {
			case <-ctx.Done():
				return domain.FailedResult("run cancelled: " + ctx.Err().Error())
			case <-time.After(r.pollInterval):
			}
			run, err = r.client.GetRun(ctx, conversationID, run.ID)
			if err != nil {
				return domain.FailedResult("poll run: " + err.Error())
			}

		case run.Status == domain.StatusRequiresTool:
			rounds++
			if rounds > r.maxToolRounds {
				return domain.FailedResult(fmt.Sprintf("%s (%d)", domain.ErrToolRounds, r.maxToolRounds))
			}
			if r.dispatcher == nil {
				return domain.FailedResult(fmt.Sprintf("persona %q has no tool dispatcher", r.persona.Name))
			}
			outputs := r.dispatcher.Dispatch(ctx, run.ToolCalls)
			run, err = r.client.SubmitToolOutputs(ctx, conversationID, run.ID, outputs)
			if err != nil {
				return domain.FailedResult("submit tool outputs: " + err.Error())
			}

		case run.Status.Terminal():
			if run.Status == domain.StatusFailed {
				detail := run.LastError
				if detail == "" {
					detail = domain.ErrRunFailed.Error()
				}
				return domain.FailedResult(detail)
			}
			text, err := r.latestAssistantText(ctx, conversationID)
			if err != nil {
				return domain.FailedResult("fetch messages: " + err.Error())
			}
			return domain.RunResult{Status: domain.StatusCompleted, Text: text}

		default:
			return domain.FailedResult(fmt.Sprintf("unexpected run status %q", run.Status))
		}
	}
}

// latestAssistantText returns the most recently created non-user message, or
// the NoResponseText sentinel when the conversation holds none.
func (r *Runner) latestAssistantText(ctx context.Context, conversationID string) (string, error) {
	msgs, err := r.client.ListMessages(ctx, conversationID)
	if err != nil {
		return "", err
	}

	var best *domain.Message
	for i := range msgs {
		m := &msgs[i]
		if m.Role == domain.RoleUser || m.Text == "" {
			continue
		}
		if best == nil || m.CreatedAt.After(best.CreatedAt) {
			best = m
		}
	}
	if best == nil {
		return domain.NoResponseText, nil
	}
	return best.Text, nil
}
