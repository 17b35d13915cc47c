package domain

import "encoding/json"

// ToolDef describes a callable function exposed to a tool-enabled persona.
type ToolDef struct {
	Name        string          `json:"name"        yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Parameters  json.RawMessage `json:"parameters"  yaml:"parameters"`
}

// ToolCallRequest is a function invocation emitted by a run that entered
// requires_tool_output. Exists only transiently during one run's poll loop.
type ToolCallRequest struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResult is the output supplied back for one tool call, correlated
// by CallID (never by arrival order).
type ToolCallResult struct {
	CallID string `json:"call_id"`
	Output string `json:"output"`
}
