package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stage(name string, ok bool, tokens int, cost float64) StageTrace {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return StageTrace{
		Stage:   name,
		Start:   start,
		End:     start.Add(2 * time.Second),
		Success: ok,
		Tokens:  tokens,
		Cost:    cost,
	}
}

func TestPipelineTraceTotals(t *testing.T) {
	p := &PipelineTrace{ID: "01TRACE", Query: "q"}
	p.Append(stage("intake", true, 10, 0.001))
	p.Append(stage("search", true, 20, 0.002))
	p.Append(stage("writer", true, 30, 0.003))

	assert.Equal(t, 60, p.TotalTokens())
	assert.InDelta(t, 0.006, p.TotalCost(), 1e-9)
	assert.True(t, p.Success())
	assert.Len(t, p.Stages, 3)
}

func TestPipelineTraceSuccessRequiresAllStages(t *testing.T) {
	p := &PipelineTrace{}
	p.Append(stage("intake", true, 10, 0))
	p.Append(stage("search", false, 0, 0))
	assert.False(t, p.Success())
}

func TestStageTraceDuration(t *testing.T) {
	s := stage("executor", true, 0, 0)
	assert.Equal(t, 2*time.Second, s.Duration())
}

func TestRunStatusClassification(t *testing.T) {
	tests := []struct {
		status    RunStatus
		transient bool
		terminal  bool
	}{
		{StatusQueued, true, false},
		{StatusInProgress, true, false},
		{StatusRequiresTool, false, false},
		{StatusCompleted, false, true},
		{StatusFailed, false, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.transient, tt.status.Transient(), "Transient(%s)", tt.status)
		assert.Equal(t, tt.terminal, tt.status.Terminal(), "Terminal(%s)", tt.status)
	}
}

func TestRunResultOK(t *testing.T) {
	assert.True(t, RunResult{Status: StatusCompleted, Text: "hi"}.OK())
	assert.False(t, FailedResult("boom").OK())
	assert.Equal(t, "boom", FailedResult("boom").Err)
}

func TestPersonaValid(t *testing.T) {
	assert.True(t, AgentPersona{ExternalID: "asst_1"}.Valid())
	assert.True(t, AgentPersona{Name: "n", SystemPrompt: "p"}.Valid())
	assert.False(t, AgentPersona{Name: "n"}.Valid())
	assert.False(t, AgentPersona{}.Valid())
}
