package runner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

// stubQueryRunner returns a canned result.
type stubQueryRunner struct {
	result domain.RunResult
	err    error
}

func (s *stubQueryRunner) Run(ctx context.Context, query string) (domain.RunResult, error) {
	return s.result, s.err
}

func args(query string) json.RawMessage {
	return json.RawMessage(`{"query":` + string(mustJSON(query)) + `}`)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func newDispatcher(t *testing.T, routes map[string]Route) *ToolDispatcher {
	t.Helper()
	d, err := NewToolDispatcher(routes, testLogger())
	require.NoError(t, err)
	return d
}

func TestDispatchResolvesRoutes(t *testing.T) {
	d := newDispatcher(t, map[string]Route{
		"ask_sop": {Expert: "SOP Agent", Runner: &stubQueryRunner{
			result: domain.RunResult{Status: domain.StatusCompleted, Text: "sop answer"},
		}},
		"ask_policy": {Expert: "Policy Agent", Runner: &stubQueryRunner{
			result: domain.RunResult{Status: domain.StatusCompleted, Text: "policy answer"},
		}},
	})

	results := d.Dispatch(context.Background(), []domain.ToolCallRequest{
		{CallID: "call_1", Name: "ask_sop", Arguments: args("what is the sop?")},
		{CallID: "call_2", Name: "ask_policy", Arguments: args("what is the policy?")},
	})

	require.Len(t, results, 2)
	// Results stay positionally correlated with the requests.
	assert.Equal(t, "call_1", results[0].CallID)
	assert.Equal(t, "sop answer", results[0].Output)
	assert.Equal(t, "call_2", results[1].CallID)
	assert.Equal(t, "policy answer", results[1].Output)

	outputs := d.Outputs()
	assert.Equal(t, map[string]string{
		"SOP Agent":    "sop answer",
		"Policy Agent": "policy answer",
	}, outputs)
}

func TestDispatchUnknownTool(t *testing.T) {
	d := newDispatcher(t, map[string]Route{})

	results := d.Dispatch(context.Background(), []domain.ToolCallRequest{
		{CallID: "call_1", Name: "ask_nobody", Arguments: args("q")},
	})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Output, "Error:")
	assert.Contains(t, results[0].Output, "ask_nobody")
}

func TestDispatchRejectsBadArguments(t *testing.T) {
	d := newDispatcher(t, map[string]Route{
		"ask_sop": {Expert: "SOP Agent", Runner: &stubQueryRunner{
			result: domain.RunResult{Status: domain.StatusCompleted, Text: "unused"},
		}},
	})

	tests := []struct {
		name string
		args json.RawMessage
	}{
		{"not json", json.RawMessage(`not json`)},
		{"missing query", json.RawMessage(`{"q":"x"}`)},
		{"wrong type", json.RawMessage(`{"query":42}`)},
		{"extra field", json.RawMessage(`{"query":"x","mode":"fast"}`)},
		{"empty query", json.RawMessage(`{"query":""}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := d.Dispatch(context.Background(), []domain.ToolCallRequest{
				{CallID: "call_1", Name: "ask_sop", Arguments: tt.args},
			})
			require.Len(t, results, 1)
			assert.Contains(t, results[0].Output, "Error:")
		})
	}
}

func TestDispatchExpertFailureBecomesErrorOutput(t *testing.T) {
	d := newDispatcher(t, map[string]Route{
		"ask_sop": {Expert: "SOP Agent", Runner: &stubQueryRunner{
			result: domain.FailedResult("sop expert down"),
		}},
		"ask_policy": {Expert: "Policy Agent", Runner: &stubQueryRunner{
			err: errors.New("resolution blew up"),
		}},
	})

	results := d.Dispatch(context.Background(), []domain.ToolCallRequest{
		{CallID: "call_1", Name: "ask_sop", Arguments: args("q")},
		{CallID: "call_2", Name: "ask_policy", Arguments: args("q")},
	})

	assert.Contains(t, results[0].Output, "sop expert down")
	assert.Contains(t, results[1].Output, "resolution blew up")

	outputs := d.Outputs()
	assert.Contains(t, outputs["SOP Agent"], "Error:")
	assert.Contains(t, outputs["Policy Agent"], "Error:")
}

func TestDispatcherReset(t *testing.T) {
	d := newDispatcher(t, map[string]Route{
		"ask_sop": {Expert: "SOP Agent", Runner: &stubQueryRunner{
			result: domain.RunResult{Status: domain.StatusCompleted, Text: "answer"},
		}},
	})

	d.Dispatch(context.Background(), []domain.ToolCallRequest{
		{CallID: "call_1", Name: "ask_sop", Arguments: args("q")},
	})
	assert.Len(t, d.Outputs(), 1)

	d.Reset()
	assert.Empty(t, d.Outputs())
}

func TestToolArgsSchemaIsValidJSON(t *testing.T) {
	var v map[string]any
	require.NoError(t, json.Unmarshal(ToolArgsSchema(), &v))
	assert.Equal(t, "object", v["type"])
}
