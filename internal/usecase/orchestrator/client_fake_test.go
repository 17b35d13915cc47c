package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ragchat/internal/domain"
	"ragchat/internal/infra/config"
)

// scriptedClient is an in-memory AgentServiceClient whose run statuses are
// consumed from a fixed script.
type scriptedClient struct {
	mu sync.Mutex

	agents    []domain.AgentRecord
	nextID    int
	convs     int
	messages  map[string][]domain.Message
	runStates []domain.Run
	runCursor int
	submitted [][]domain.ToolCallResult
	callOrder []string
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{messages: make(map[string][]domain.Message)}
}

func fastRunnerCfg() config.RunnerConfig {
	return config.RunnerConfig{
		PollInterval:  time.Millisecond,
		PollTimeout:   time.Second,
		MaxToolRounds: 8,
	}
}

func (s *scriptedClient) FindAgentByName(ctx context.Context, name string) (*domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callOrder = append(s.callOrder, "find:"+name)
	for _, a := range s.agents {
		if a.Name == name {
			rec := a
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *scriptedClient) GetAgent(ctx context.Context, id string) (*domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.ID == id {
			rec := a
			return &rec, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *scriptedClient) CreateAgent(ctx context.Context, spec domain.AgentSpec) (*domain.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callOrder = append(s.callOrder, "create:"+spec.Name)
	s.nextID++
	rec := domain.AgentRecord{ID: fmt.Sprintf("asst_%d", s.nextID), Name: spec.Name, Tools: spec.Tools}
	s.agents = append(s.agents, rec)
	return &rec, nil
}

func (s *scriptedClient) DeleteAgent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callOrder = append(s.callOrder, "delete:"+id)
	for i, a := range s.agents {
		if a.ID == id {
			s.agents = append(s.agents[:i], s.agents[i+1:]...)
			break
		}
	}
	return nil
}

func (s *scriptedClient) CreateConversation(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs++
	return fmt.Sprintf("thread_%d", s.convs), nil
}

func (s *scriptedClient) PostMessage(ctx context.Context, conversationID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = append(s.messages[conversationID], domain.Message{
		Role: role, Text: text, CreatedAt: time.Now(),
	})
	return nil
}

func (s *scriptedClient) nextRun() (*domain.Run, error) {
	if s.runCursor >= len(s.runStates) {
		return nil, errors.New("scripted client: run script exhausted")
	}
	run := s.runStates[s.runCursor]
	s.runCursor++
	return &run, nil
}

func (s *scriptedClient) StartRun(ctx context.Context, conversationID, agentID string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun()
}

func (s *scriptedClient) GetRun(ctx context.Context, conversationID, runID string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRun()
}

func (s *scriptedClient) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messages[conversationID], nil
}

func (s *scriptedClient) SubmitToolOutputs(ctx context.Context, conversationID, runID string, outputs []domain.ToolCallResult) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, outputs)
	return s.nextRun()
}

// reply seeds a conversation with an assistant message.
func (s *scriptedClient) reply(conv, text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conv] = append(s.messages[conv], domain.Message{
		Role: domain.RoleAssistant, Text: text, CreatedAt: at,
	})
}
