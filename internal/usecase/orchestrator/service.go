package orchestrator

import (
	"fmt"
	"log/slog"

	"ragchat/internal/domain"
	"ragchat/internal/infra/config"
	"ragchat/internal/usecase/runner"
	"ragchat/internal/usecase/trace"
)

// Service bundles the consumer-facing operations: the five-stage pipeline,
// expert fan-out, tool-routed orchestration and delta analysis. One Service
// per process; runners and their caches live as long as it does.
type Service struct {
	Pipeline *Pipeline
	Experts  *ExpertRouter
	Tools    *ToolRouter
	Delta    *DeltaAnalyzer
}

// NewService builds every persona runner against one shared client.
func NewService(client domain.AgentServiceClient, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	model := cfg.Service.Model
	rc := cfg.Runner

	newRunner := func(p domain.AgentPersona, d runner.Dispatcher) *runner.Runner {
		return runner.New(client, p, rc, d, logger)
	}

	var counter trace.TokenCounter
	if cfg.Cost.Tokenizer == "tiktoken" {
		tk, err := trace.NewTiktokenCounter(cfg.Cost.TokenizerModel)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: %w", err)
		}
		counter = tk
	}
	estimator := trace.NewCostEstimator(counter, cfg.Cost.InputRatePer1K, cfg.Cost.OutputRatePer1K)
	stageTracer := trace.NewStageTracer(estimator, logger)

	pipeline := NewPipeline(Stages{
		Intake:        newRunner(IntakePersona(model), nil),
		Search:        newRunner(SearchPersona(model), nil),
		Writer:        newRunner(WriterPersona(model), nil),
		Reviewer:      newRunner(ReviewerPersona(model), nil),
		Executor:      newRunner(ExecutorPersona(model), nil),
		ReviewExecute: newRunner(ReviewExecutePersona(model), nil),
	}, stageTracer, PipelineOptions{CombineReviewExecute: cfg.Pipeline.CombineReviewExecute}, logger)

	sop := newRunner(SopPersona(model, cfg.Personas.SopAgentID, cfg.Personas.ValidateIDs), nil)
	policy := newRunner(PolicyPersona(model, cfg.Personas.PolicyAgentID, cfg.Personas.ValidateIDs), nil)

	experts := NewExpertRouter(map[string]StageRunner{
		SopAgentName:    sop,
		PolicyAgentName: policy,
	}, logger)

	dispatcher, err := runner.NewToolDispatcher(map[string]runner.Route{
		ToolAskSop:    {Expert: SopAgentName, Runner: sop},
		ToolAskPolicy: {Expert: PolicyAgentName, Runner: policy},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("tool dispatcher: %w", err)
	}
	tools := NewToolRouter(newRunner(OrchestratorPersona(model), dispatcher), dispatcher, logger)

	delta := NewDeltaAnalyzer(client, newRunner(DeltaPersona(model), nil), DeltaAgentName, logger)

	return &Service{
		Pipeline: pipeline,
		Experts:  experts,
		Tools:    tools,
		Delta:    delta,
	}, nil
}
