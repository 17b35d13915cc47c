package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"ragchat/internal/domain"
)

// DeltaUnavailableText is returned when the comparison run does not produce
// usable content.
const DeltaUnavailableText = "Unable to complete delta analysis. Please try again."

// DeltaAnalyzer compares two expert responses to the same query through a
// persona that is explicitly provisioned with no callable tools.
type DeltaAnalyzer struct {
	client      domain.AgentServiceClient
	runner      StageRunner
	personaName string
	logger      *slog.Logger

	// stale tool-bearing registrations are purged once per process, before
	// the first comparison run.
	ensureOnce sync.Once
	ensureErr  error
}

// NewDeltaAnalyzer builds an analyzer around a tool-less comparison runner.
// personaName must match the runner's persona so the stale-registration
// check inspects the right registration.
func NewDeltaAnalyzer(client domain.AgentServiceClient, r StageRunner, personaName string, logger *slog.Logger) *DeltaAnalyzer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DeltaAnalyzer{client: client, runner: r, personaName: personaName, logger: logger}
}

// Analyze produces a structured comparison of responseA and responseB. On a
// failed or content-less run it returns DeltaUnavailableText rather than an
// error; only setup failures (stale-registration purge, resolution) error.
func (d *DeltaAnalyzer) Analyze(ctx context.Context, query, responseA, responseB string) (string, error) {
	d.ensureOnce.Do(func() { d.ensureErr = d.purgeStaleRegistration(ctx) })
	if d.ensureErr != nil {
		return "", d.ensureErr
	}

	res, err := d.runner.Run(ctx, buildDeltaPrompt(query, responseA, responseB))
	if err != nil {
		return "", err
	}
	if !res.OK() || res.Text == domain.NoResponseText {
		d.logger.Warn("delta analysis run did not complete", "status", res.Status, "error", res.Err)
		return DeltaUnavailableText, nil
	}
	return res.Text, nil
}

// purgeStaleRegistration deletes an existing registration under the
// analyzer's name if it carries tools. A tool-bearing comparison agent could
// enter requires_tool_output mid-run, which the analyzer never handles, so
// a stale registration is a correctness hazard.
func (d *DeltaAnalyzer) purgeStaleRegistration(ctx context.Context) error {
	rec, err := d.client.FindAgentByName(ctx, d.personaName)
	if err != nil {
		return fmt.Errorf("check registration for %q: %w", d.personaName, err)
	}
	if rec == nil || len(rec.Tools) == 0 {
		return nil
	}

	d.logger.Warn("deleting stale tool-bearing registration",
		"persona", d.personaName, "agent_id", rec.ID, "tools", len(rec.Tools),
	)
	if err := d.client.DeleteAgent(ctx, rec.ID); err != nil {
		return fmt.Errorf("delete stale registration %q: %w", rec.ID, err)
	}
	return nil
}

// buildDeltaPrompt embeds the query and both responses into one composite
// comparison request.
func buildDeltaPrompt(query, responseA, responseB string) string {
	return fmt.Sprintf(`Original Question: %s

SOP Agent Response:
%s

Policy Agent Response:
%s

Please analyze the differences between the SOP Agent and Policy Agent responses. Provide your analysis in a well-structured format with the following sections:

## Key Similarities
List the main points where both agents agree or provide similar information.

## Key Differences
Present a comparison table showing the main differences:
| Aspect | SOP Agent | Policy Agent |
|--------|-----------|--------------|
| (Add rows comparing specific aspects)

## Contradictions or Conflicts
Identify any contradictions or conflicts between the responses. If none exist, state that clearly.

## Unique Insights
| Agent | Unique Insights |
|-------|----------------|
| SOP Agent | (List unique points from SOP) |
| Policy Agent | (List unique points from Policy) |

## Relevance Assessment
Which response is more relevant to the original question and why?

Use clear markdown formatting with tables where appropriate to make the comparison easy to understand.`, query, responseA, responseB)
}
