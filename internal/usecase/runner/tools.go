package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"ragchat/internal/domain"
)

// toolArgsSchema is the fixed argument shape every routed tool accepts:
// exactly one required string field carrying the expert's query.
const toolArgsSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": "string"}
	},
	"required": ["query"],
	"additionalProperties": false
}`

// ToolArgsSchema returns the shared argument schema for routed tools, for
// use in persona tool definitions.
func ToolArgsSchema() json.RawMessage { return json.RawMessage(toolArgsSchema) }

// QueryRunner is the subset of Runner a tool route needs.
type QueryRunner interface {
	Run(ctx context.Context, query string) (domain.RunResult, error)
}

// Route binds a tool name to the expert runner that serves it.
type Route struct {
	Expert string // key in the collected output map
	Runner QueryRunner
}

// ToolDispatcher resolves tool calls by fanning out to expert runners in
// parallel. Outputs are correlated by call id, never by arrival order, and
// the per-expert texts are collected for the caller.
type ToolDispatcher struct {
	routes map[string]Route
	schema *jsonschema.Schema
	logger *slog.Logger

	mu      sync.Mutex
	outputs map[string]string
}

// NewToolDispatcher builds a dispatcher for the given tool routes.
func NewToolDispatcher(routes map[string]Route, logger *slog.Logger) (*ToolDispatcher, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(toolArgsSchema))
	if err != nil {
		return nil, fmt.Errorf("compile tool args schema: %w", err)
	}

	return &ToolDispatcher{
		routes:  routes,
		schema:  schema,
		logger:  logger,
		outputs: make(map[string]string),
	}, nil
}

// Reset clears the collected expert outputs before a new tool-routed run.
func (d *ToolDispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs = make(map[string]string)
}

// Outputs returns a copy of the expert texts collected since the last Reset.
func (d *ToolDispatcher) Outputs() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.outputs))
	for k, v := range d.outputs {
		out[k] = v
	}
	return out
}

// Dispatch implements Dispatcher. Every call gets an output: unknown tools
// and bad arguments produce an error string, not a fatal failure, so the
// external run can react.
func (d *ToolDispatcher) Dispatch(ctx context.Context, calls []domain.ToolCallRequest) []domain.ToolCallResult {
	results := make([]domain.ToolCallResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call domain.ToolCallRequest) {
			defer wg.Done()
			results[i] = domain.ToolCallResult{
				CallID: call.CallID,
				Output: d.resolve(ctx, call),
			}
		}(i, call)
	}
	wg.Wait()

	return results
}

func (d *ToolDispatcher) resolve(ctx context.Context, call domain.ToolCallRequest) string {
	route, ok := d.routes[call.Name]
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name, "call_id", call.CallID)
		return fmt.Sprintf("Error: %s: %q", domain.ErrToolNotFound, call.Name)
	}

	query, err := d.parseQuery(call.Arguments)
	if err != nil {
		d.logger.Warn("invalid tool arguments", "tool", call.Name, "error", err)
		return "Error: invalid arguments: " + err.Error()
	}

	res, err := route.Runner.Run(ctx, query)
	if err != nil {
		d.record(route.Expert, "Error: "+err.Error())
		return "Error: " + err.Error()
	}
	if !res.OK() {
		d.record(route.Expert, "Error: "+res.Err)
		return "Error: " + res.Err
	}

	d.record(route.Expert, res.Text)
	return res.Text
}

// parseQuery validates the arguments against the fixed schema and extracts
// the query string.
func (d *ToolDispatcher) parseQuery(args json.RawMessage) (string, error) {
	var parsed map[string]any
	if err := json.Unmarshal(args, &parsed); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}

	if result := d.schema.Validate(parsed); !result.IsValid() {
		return "", fmt.Errorf("arguments do not match schema: %s", result.Error())
	}

	query, _ := parsed["query"].(string)
	if query == "" {
		return "", fmt.Errorf("empty query")
	}
	return query, nil
}

func (d *ToolDispatcher) record(expert, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[expert] = text
}
