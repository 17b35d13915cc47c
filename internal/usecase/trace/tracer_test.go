package trace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicCounter(t *testing.T) {
	c := HeuristicCounter{}
	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 0, c.Count("abc"))
	assert.Equal(t, 1, c.Count("abcd"))
	assert.Equal(t, 5, c.Count("this is 20 chars....")) // 20/4
}

func TestEstimateDeterministic(t *testing.T) {
	e := NewCostEstimator(nil, 0.01, 0.03)

	query := "What is the return policy?"
	response := "Returns are accepted within 30 days."

	t1, c1 := e.Estimate(query, response)
	t2, c2 := e.Estimate(query, response)

	assert.Equal(t, t1, t2)
	assert.Equal(t, c1, c2)

	// len(query)=26 -> 6, len(response)=36 -> 9, total 15 tokens.
	assert.Equal(t, 15, t1)
	// 7.5 tokens at 0.01/1K plus 7.5 at 0.03/1K.
	assert.InDelta(t, 7.5*0.01/1000+7.5*0.03/1000, c1, 1e-12)
}

func TestEstimateEmptyStrings(t *testing.T) {
	e := NewCostEstimator(nil, 0.01, 0.03)
	tokens, cost := e.Estimate("", "")
	assert.Equal(t, 0, tokens)
	assert.Equal(t, 0.0, cost)
}

func TestTracedSuccess(t *testing.T) {
	tr := NewStageTracer(NewCostEstimator(nil, 0.01, 0.03), nil)

	out, rec := tr.Traced(context.Background(), "Search", "find docs", func(ctx context.Context, q string) (string, error) {
		assert.Equal(t, "find docs", q)
		return "found three passages", nil
	})

	assert.Equal(t, "found three passages", out)
	assert.Equal(t, "Search", rec.Stage)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Error)
	assert.Positive(t, rec.Tokens)
	assert.Positive(t, rec.Cost)
	assert.False(t, rec.End.Before(rec.Start))
}

func TestTracedFailureNeverPropagates(t *testing.T) {
	tr := NewStageTracer(NewCostEstimator(nil, 0.01, 0.03), nil)

	out, rec := tr.Traced(context.Background(), "Writer", "draft it", func(ctx context.Context, q string) (string, error) {
		return "", errors.New("model unavailable")
	})

	assert.Empty(t, out)
	assert.False(t, rec.Success)
	assert.Equal(t, "model unavailable", rec.Error)
	assert.Zero(t, rec.Tokens)
	assert.Zero(t, rec.Cost)
}

func TestTracedCustomCounter(t *testing.T) {
	e := NewCostEstimator(fixedCounter(10), 1, 1)
	tokens, cost := e.Estimate("a", "b")
	assert.Equal(t, 20, tokens)
	assert.InDelta(t, 10*1.0/1000+10*1.0/1000, cost, 1e-12)
}

type fixedCounter int

func (f fixedCounter) Count(string) int { return int(f) }
