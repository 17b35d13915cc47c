package domain

import "time"

// Message roles as the hosted agent service reports them.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// RunStatus is the status vocabulary of a hosted agent run.
type RunStatus string

const (
	StatusQueued       RunStatus = "queued"
	StatusInProgress   RunStatus = "in_progress"
	StatusRequiresTool RunStatus = "requires_tool_output"
	StatusCompleted    RunStatus = "completed"
	StatusFailed       RunStatus = "failed"
)

// Transient reports whether the status is one the polling loop absorbs.
func (s RunStatus) Transient() bool {
	return s == StatusQueued || s == StatusInProgress
}

// Terminal reports whether the run has finished (for better or worse).
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Run is one execution of an agent against a conversation.
type Run struct {
	ID        string            `json:"id"`
	Status    RunStatus         `json:"status"`
	LastError string            `json:"last_error,omitempty"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"`
}

// Message is one entry in a conversation, ordered by CreatedAt.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NoResponseText is the sentinel returned when a run completes but no
// assistant message can be retrieved.
const NoResponseText = "no response produced"

// RunResult is the outcome of executing one query against one persona.
// Run failures are carried as values so callers can degrade per stage
// instead of unwinding; see Err for the failure description.
type RunResult struct {
	Status RunStatus `json:"status"`
	Text   string    `json:"text,omitempty"`
	Err    string    `json:"error,omitempty"`
}

// OK reports whether the run completed with usable text.
func (r RunResult) OK() bool { return r.Status == StatusCompleted && r.Err == "" }

// FailedResult builds a failed RunResult from an error description.
func FailedResult(detail string) RunResult {
	return RunResult{Status: StatusFailed, Err: detail}
}
