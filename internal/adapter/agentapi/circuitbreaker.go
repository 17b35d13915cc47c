package agentapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"ragchat/internal/domain"
	"ragchat/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerClient wraps an AgentServiceClient with circuit breaker protection.
// When the service fails repeatedly, the circuit opens and subsequent calls
// fail fast without reaching it, which matters with a 1 second poll loop
// behind every pipeline stage.
type BreakerClient struct {
	inner   domain.AgentServiceClient
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreakerClient wraps inner with a circuit breaker. Zero-valued settings
// fall back to defaults.
func NewBreakerClient(inner domain.AgentServiceClient, cfg config.CircuitBreakerConfig, logger *slog.Logger) *BreakerClient {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "agent-service",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BreakerClient{inner: inner, breaker: cb, logger: logger}
}

// execute routes one call through the breaker, translating open-circuit
// errors into a provider error the orchestration layer can degrade on.
func execute[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	res, err := b.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, fmt.Errorf("%w: agent service circuit open: %v", domain.ErrProviderError, err)
		}
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}

func (b *BreakerClient) FindAgentByName(ctx context.Context, name string) (*domain.AgentRecord, error) {
	return execute(b, func() (*domain.AgentRecord, error) { return b.inner.FindAgentByName(ctx, name) })
}

func (b *BreakerClient) GetAgent(ctx context.Context, id string) (*domain.AgentRecord, error) {
	return execute(b, func() (*domain.AgentRecord, error) { return b.inner.GetAgent(ctx, id) })
}

func (b *BreakerClient) CreateAgent(ctx context.Context, spec domain.AgentSpec) (*domain.AgentRecord, error) {
	return execute(b, func() (*domain.AgentRecord, error) { return b.inner.CreateAgent(ctx, spec) })
}

func (b *BreakerClient) DeleteAgent(ctx context.Context, id string) error {
	_, err := execute(b, func() (struct{}, error) { return struct{}{}, b.inner.DeleteAgent(ctx, id) })
	return err
}

func (b *BreakerClient) CreateConversation(ctx context.Context) (string, error) {
	return execute(b, func() (string, error) { return b.inner.CreateConversation(ctx) })
}

func (b *BreakerClient) PostMessage(ctx context.Context, conversationID, role, text string) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, b.inner.PostMessage(ctx, conversationID, role, text)
	})
	return err
}

func (b *BreakerClient) StartRun(ctx context.Context, conversationID, agentID string) (*domain.Run, error) {
	return execute(b, func() (*domain.Run, error) { return b.inner.StartRun(ctx, conversationID, agentID) })
}

func (b *BreakerClient) GetRun(ctx context.Context, conversationID, runID string) (*domain.Run, error) {
	return execute(b, func() (*domain.Run, error) { return b.inner.GetRun(ctx, conversationID, runID) })
}

func (b *BreakerClient) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	return execute(b, func() ([]domain.Message, error) { return b.inner.ListMessages(ctx, conversationID) })
}

func (b *BreakerClient) SubmitToolOutputs(ctx context.Context, conversationID, runID string, outputs []domain.ToolCallResult) (*domain.Run, error) {
	return execute(b, func() (*domain.Run, error) {
		return b.inner.SubmitToolOutputs(ctx, conversationID, runID, outputs)
	})
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}

// Compile-time interface check.
var _ domain.AgentServiceClient = (*BreakerClient)(nil)
