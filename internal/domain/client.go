package domain

import "context"

// AgentRecord is the service's view of a registered agent.
type AgentRecord struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Tools []ToolDef `json:"tools,omitempty"`
}

// AgentSpec is the payload for registering a new agent.
type AgentSpec struct {
	Model        string    `json:"model"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Tools        []ToolDef `json:"tools,omitempty"`
}

// AgentServiceClient is the hosted conversational-agent service this core
// consumes. Implementations live in adapter packages; the orchestration
// layer never talks HTTP directly.
type AgentServiceClient interface {
	// FindAgentByName returns the first registration matching name, or
	// (nil, nil) when none exists.
	FindAgentByName(ctx context.Context, name string) (*AgentRecord, error)
	// GetAgent fetches a registration by id. Used for opt-in validation of
	// pre-provisioned ids.
	GetAgent(ctx context.Context, id string) (*AgentRecord, error)
	CreateAgent(ctx context.Context, spec AgentSpec) (*AgentRecord, error)
	DeleteAgent(ctx context.Context, id string) error

	CreateConversation(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, conversationID, role, text string) error
	StartRun(ctx context.Context, conversationID, agentID string) (*Run, error)
	GetRun(ctx context.Context, conversationID, runID string) (*Run, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	SubmitToolOutputs(ctx context.Context, conversationID, runID string, outputs []ToolCallResult) (*Run, error)
}
