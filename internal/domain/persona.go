package domain

// AgentPersona describes a named role definition bound to an external agent
// registration. Created at configuration time and never mutated.
type AgentPersona struct {
	Name         string    `json:"name"          yaml:"name"`
	SystemPrompt string    `json:"system_prompt" yaml:"system_prompt"`
	Model        string    `json:"model"         yaml:"model"`
	ExternalID   string    `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	Tools        []ToolDef `json:"tools,omitempty"       yaml:"tools,omitempty"`

	// Stateful personas keep one conversation across queries within a
	// process; stateless personas get a fresh conversation per query.
	Stateful bool `json:"stateful,omitempty" yaml:"stateful,omitempty"`

	// ValidateID opts into checking a pre-supplied ExternalID against the
	// service before trusting it. When validation fails, resolution falls
	// through to name-based lookup.
	ValidateID bool `json:"validate_id,omitempty" yaml:"validate_id,omitempty"`
}

// Valid reports whether the persona carries enough to be resolved: either a
// pre-supplied external id, or a name plus instructions to find-or-create.
func (p AgentPersona) Valid() bool {
	if p.ExternalID != "" {
		return true
	}
	return p.Name != "" && p.SystemPrompt != ""
}

// AgentHandle is a persona bound to an external registration id after
// resolution. Cached for the lifetime of the owning runner; never
// re-validated (no TTL, no refresh).
type AgentHandle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
