package agentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"ragchat/internal/domain"
	"ragchat/internal/infra/config"
	"ragchat/internal/infra/tracer"
)

// Client implements domain.AgentServiceClient against an assistants-style
// REST API: /assistants for registrations, /threads for conversations,
// /threads/{id}/runs for executions.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a service client with pooled transport and a request throttle.
func New(cfg config.ServiceConfig, logger *slog.Logger) *Client {
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:  cfg.APIKey,
		client:  NewHTTPClient(cfg),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

func (c *Client) headers() map[string]string {
	h := map[string]string{}
	if c.apiKey != "" {
		h["Authorization"] = "Bearer " + c.apiKey
	}
	return h
}

// do throttles, executes and decodes one JSON call. out may be nil when the
// caller does not need the body.
func (c *Client) do(ctx context.Context, method, path string, reqBody any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body []byte
	if reqBody != nil {
		var err error
		body, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	respBody, err := doJSONRequest(ctx, c.client, method, c.baseURL+path, body, c.headers())
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// --- agent registrations ---

// FindAgentByName pages through registrations and returns the first whose
// name matches, or (nil, nil) when none does.
func (c *Client) FindAgentByName(ctx context.Context, name string) (*domain.AgentRecord, error) {
	ctx, span := tracer.StartSpan(ctx, "agentapi.find_agent",
		trace.WithAttributes(tracer.StringAttr("agent.name", name)),
	)
	defer span.End()

	after := ""
	for {
		path := "/assistants?limit=100"
		if after != "" {
			path += "&after=" + after
		}
		var page agentListResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		for _, a := range page.Data {
			if a.Name == name {
				tracer.SetOK(span)
				return fromWireAgent(a), nil
			}
		}
		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		after = page.Data[len(page.Data)-1].ID
	}

	tracer.SetOK(span)
	return nil, nil
}

// GetAgent fetches a registration by id.
func (c *Client) GetAgent(ctx context.Context, id string) (*domain.AgentRecord, error) {
	var a agentWire
	if err := c.do(ctx, http.MethodGet, "/assistants/"+id, nil, &a); err != nil {
		return nil, err
	}
	return fromWireAgent(a), nil
}

// CreateAgent registers a new agent.
func (c *Client) CreateAgent(ctx context.Context, spec domain.AgentSpec) (*domain.AgentRecord, error) {
	ctx, span := tracer.StartSpan(ctx, "agentapi.create_agent",
		trace.WithAttributes(tracer.StringAttr("agent.name", spec.Name)),
	)
	defer span.End()

	req := agentCreateRequest{
		Model:        spec.Model,
		Name:         spec.Name,
		Instructions: spec.Instructions,
		Tools:        toWireTools(spec.Tools),
	}

	var a agentWire
	if err := c.do(ctx, http.MethodPost, "/assistants", req, &a); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	c.logger.Info("agent registered", "name", a.Name, "id", a.ID)
	tracer.SetOK(span)
	return fromWireAgent(a), nil
}

// DeleteAgent removes a registration.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/assistants/"+id, nil, nil); err != nil {
		return err
	}
	c.logger.Info("agent deleted", "id", id)
	return nil
}

// --- conversations ---

// CreateConversation opens a new thread and returns its id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	var t threadWire
	if err := c.do(ctx, http.MethodPost, "/threads", struct{}{}, &t); err != nil {
		return "", err
	}
	return t.ID, nil
}

// PostMessage appends a message to a conversation.
func (c *Client) PostMessage(ctx context.Context, conversationID, role, text string) error {
	req := messageCreateRequest{Role: role, Content: text}
	return c.do(ctx, http.MethodPost, "/threads/"+conversationID+"/messages", req, nil)
}

// StartRun begins executing agentID against a conversation.
func (c *Client) StartRun(ctx context.Context, conversationID, agentID string) (*domain.Run, error) {
	ctx, span := tracer.StartSpan(ctx, "agentapi.start_run",
		trace.WithAttributes(tracer.StringAttr("agent.id", agentID)),
	)
	defer span.End()

	req := runCreateRequest{AssistantID: agentID}
	var r runWire
	if err := c.do(ctx, http.MethodPost, "/threads/"+conversationID+"/runs", req, &r); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return fromWireRun(r), nil
}

// GetRun fetches the current state of a run.
func (c *Client) GetRun(ctx context.Context, conversationID, runID string) (*domain.Run, error) {
	var r runWire
	if err := c.do(ctx, http.MethodGet, "/threads/"+conversationID+"/runs/"+runID, nil, &r); err != nil {
		return nil, err
	}
	return fromWireRun(r), nil
}

// ListMessages returns the conversation's messages ordered oldest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var page messageListResponse
	if err := c.do(ctx, http.MethodGet, "/threads/"+conversationID+"/messages?limit=100", nil, &page); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(page.Data))
	for _, m := range page.Data {
		msgs = append(msgs, domain.Message{
			Role:      m.Role,
			Text:      m.textValue(),
			CreatedAt: time.Unix(m.CreatedAt, 0),
		})
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs, nil
}

// SubmitToolOutputs posts the batched outputs for a run waiting on tools.
func (c *Client) SubmitToolOutputs(ctx context.Context, conversationID, runID string, outputs []domain.ToolCallResult) (*domain.Run, error) {
	ctx, span := tracer.StartSpan(ctx, "agentapi.submit_tool_outputs",
		trace.WithAttributes(tracer.IntAttr("tool.outputs", len(outputs))),
	)
	defer span.End()

	req := submitToolOutputsRequest{ToolOutputs: make([]toolOutputWire, 0, len(outputs))}
	for _, o := range outputs {
		req.ToolOutputs = append(req.ToolOutputs, toolOutputWire{ToolCallID: o.CallID, Output: o.Output})
	}

	var r runWire
	path := "/threads/" + conversationID + "/runs/" + runID + "/submit_tool_outputs"
	if err := c.do(ctx, http.MethodPost, path, req, &r); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	return fromWireRun(r), nil
}

// Compile-time interface check.
var _ domain.AgentServiceClient = (*Client)(nil)

// --- wire types ---

type agentWire struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Tools []toolWire `json:"tools,omitempty"`
}

func fromWireAgent(a agentWire) *domain.AgentRecord {
	rec := &domain.AgentRecord{ID: a.ID, Name: a.Name}
	for _, t := range a.Tools {
		rec.Tools = append(rec.Tools, domain.ToolDef{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}
	return rec
}

type agentListResponse struct {
	Data    []agentWire `json:"data"`
	HasMore bool        `json:"has_more"`
}

type agentCreateRequest struct {
	Model        string     `json:"model"`
	Name         string     `json:"name"`
	Instructions string     `json:"instructions"`
	Tools        []toolWire `json:"tools,omitempty"`
}

type toolWire struct {
	Type     string           `json:"type"`
	Function toolFunctionWire `json:"function"`
}

type toolFunctionWire struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func toWireTools(tools []domain.ToolDef) []toolWire {
	if len(tools) == 0 {
		return nil
	}
	out := make([]toolWire, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolWire{
			Type: "function",
			Function: toolFunctionWire{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

type threadWire struct {
	ID string `json:"id"`
}

type messageCreateRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runCreateRequest struct {
	AssistantID string `json:"assistant_id"`
}

type runWire struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	LastError      *runErrorWire `json:"last_error,omitempty"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []toolCallWire `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action,omitempty"`
}

type runErrorWire struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type toolCallWire struct {
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func fromWireRun(r runWire) *domain.Run {
	run := &domain.Run{
		ID:     r.ID,
		Status: domain.RunStatus(r.Status),
	}
	if r.LastError != nil {
		run.LastError = r.LastError.Message
	}
	if r.RequiredAction != nil {
		for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
			run.ToolCalls = append(run.ToolCalls, domain.ToolCallRequest{
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	return run
}

type messageWire struct {
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
	Content   []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

// textValue joins the text parts of a message.
func (m messageWire) textValue() string {
	var parts []string
	for _, c := range m.Content {
		if c.Type == "text" && c.Text.Value != "" {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

type messageListResponse struct {
	Data []messageWire `json:"data"`
}

type submitToolOutputsRequest struct {
	ToolOutputs []toolOutputWire `json:"tool_outputs"`
}

type toolOutputWire struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
