package domain

import "time"

// StageTrace records one stage execution inside a pipeline run.
type StageTrace struct {
	Stage   string    `json:"stage"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`

	// Tokens and Cost come from a character-count heuristic, not a billing
	// signal. Treat as a placeholder metric only.
	Tokens int     `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Duration returns the wall-clock time the stage took.
func (t StageTrace) Duration() time.Duration { return t.End.Sub(t.Start) }

// PipelineTrace is the ordered, append-only record of one pipeline
// invocation. Partial traces are valid: a pipeline that fails mid-way still
// returns the stages it attempted.
type PipelineTrace struct {
	ID     string       `json:"id"`
	Query  string       `json:"query"`
	Stages []StageTrace `json:"stages"`
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
}

// Append adds a stage record.
func (p *PipelineTrace) Append(s StageTrace) { p.Stages = append(p.Stages, s) }

// TotalDuration returns the pipeline's wall-clock duration.
func (p *PipelineTrace) TotalDuration() time.Duration { return p.End.Sub(p.Start) }

// TotalTokens sums the per-stage token estimates.
func (p *PipelineTrace) TotalTokens() int {
	var n int
	for _, s := range p.Stages {
		n += s.Tokens
	}
	return n
}

// TotalCost sums the per-stage cost estimates.
func (p *PipelineTrace) TotalCost() float64 {
	var c float64
	for _, s := range p.Stages {
		c += s.Cost
	}
	return c
}

// Success reports whether every attempted stage succeeded.
func (p *PipelineTrace) Success() bool {
	for _, s := range p.Stages {
		if !s.Success {
			return false
		}
	}
	return true
}
