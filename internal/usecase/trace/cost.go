package trace

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token count of a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter approximates tokens as length/4. This is a placeholder
// metric, not billing-accurate.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(text string) int { return len(text) / 4 }

// TiktokenCounter counts BPE tokens for a specific model. Opt-in via
// cost.tokenizer=tiktoken; the heuristic stays the default because it is
// deterministic and dependency-free at runtime.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter creates a counter for the given model's encoding.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return nil, fmt.Errorf("load encoding for %q: %w", model, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

// Count implements TokenCounter.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// CostEstimator turns a (query, response) pair into token and cost estimates.
// Half the tokens are priced at the input rate and half at the output rate,
// both per 1000 tokens.
type CostEstimator struct {
	counter      TokenCounter
	inRatePer1K  float64
	outRatePer1K float64
}

// NewCostEstimator builds an estimator. A nil counter falls back to the
// length/4 heuristic.
func NewCostEstimator(counter TokenCounter, inRatePer1K, outRatePer1K float64) *CostEstimator {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &CostEstimator{
		counter:      counter,
		inRatePer1K:  inRatePer1K,
		outRatePer1K: outRatePer1K,
	}
}

// Estimate returns the token count and cost for one stage execution.
// Pure function of the inputs: same strings give the same numbers.
func (e *CostEstimator) Estimate(query, response string) (int, float64) {
	tokens := e.counter.Count(query) + e.counter.Count(response)
	half := float64(tokens) / 2
	cost := half*e.inRatePer1K/1000 + half*e.outRatePer1K/1000
	return tokens, cost
}
