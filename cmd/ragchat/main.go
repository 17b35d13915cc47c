package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"

	"ragchat/internal/adapter/agentapi"
	"ragchat/internal/adapter/tracestore"
	"ragchat/internal/domain"
	"ragchat/internal/infra/config"
	"ragchat/internal/infra/logger"
	"ragchat/internal/infra/tracer"
	"ragchat/internal/usecase/orchestrator"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "pipeline"
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "pipeline":
		err = withService(func(ctx context.Context, app *appContext) error {
			return runPipeline(ctx, app)
		})
	case "experts":
		err = withService(func(ctx context.Context, app *appContext) error {
			return runExperts(ctx, app)
		})
	case "ask":
		err = withService(func(ctx context.Context, app *appContext) error {
			return runAsk(ctx, app)
		})
	case "delta":
		err = withService(func(ctx context.Context, app *appContext) error {
			return runDelta(ctx, app)
		})
	case "traces":
		err = runTraces()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'ragchat --help' for usage information.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v [%s]\n", cmd, err, domain.ErrorCodeOf(err))
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`ragchat - multi-agent RAG chat orchestration

USAGE:
    ragchat [COMMAND] [FLAGS]

COMMANDS:
    pipeline    Answer a query through the five-stage agent pipeline
                (intake, search, write, review, execute)
    experts     Fan the query out to the SOP and Policy experts in parallel
    ask         Answer through the tool-routed orchestrator persona
    delta       Consult both experts, then analyze how their answers differ
    traces      List persisted pipeline traces

    (no command) - Same as 'pipeline'

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)
    --query TEXT     The question to answer

CONFIGURATION:
    Config file: ./config.yaml
    Environment: RAGCHAT_* variables override config

EXAMPLES:
    ragchat --query "What is the return policy?"
    ragchat experts --query "How do I process a refund?"
    ragchat delta --query "How long is the return window?"
    ragchat traces`)
}

// appContext bundles the wired components each command needs.
type appContext struct {
	cfg     *config.Config
	log     *slog.Logger
	service *orchestrator.Service
	traces  *tracestore.SQLiteStore
	query   string
}

// withService wires config, logger, tracer, client and orchestrator, then
// hands control to the command body.
func withService(body func(ctx context.Context, app *appContext) error) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	var client domain.AgentServiceClient = agentapi.New(cfg.Service, log)
	if cfg.Service.CircuitBreaker.Enabled {
		client = agentapi.NewBreakerClient(client, cfg.Service.CircuitBreaker, log)
	}

	service, err := orchestrator.NewService(client, cfg, log)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	app := &appContext{cfg: cfg, log: log, service: service, query: queryFlag()}
	if app.query == "" {
		return fmt.Errorf("--query is required")
	}

	if cfg.Traces.Enabled {
		store, err := tracestore.NewSQLiteStore(cfg.Traces.DBPath)
		if err != nil {
			return fmt.Errorf("trace store: %w", err)
		}
		defer store.Close()
		app.traces = store
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return body(ctx, app)
}

func runPipeline(ctx context.Context, app *appContext) error {
	answer, trace := app.service.Pipeline.Run(ctx, app.query)

	if app.traces != nil {
		if err := app.traces.Save(ctx, trace); err != nil {
			app.log.Warn("failed to persist trace", "trace_id", trace.ID, "error", err)
		}
	}

	fmt.Print(renderMarkdown(answer))
	printTrace(trace)
	return nil
}

func runExperts(ctx context.Context, app *appContext) error {
	results := app.service.Experts.Route(ctx, app.query)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("## %s\n", name)
		fmt.Print(renderMarkdown(results[name]))
		fmt.Println()
	}
	return nil
}

func runAsk(ctx context.Context, app *appContext) error {
	answer, experts, err := app.service.Tools.Ask(ctx, app.query)
	if err != nil {
		return err
	}

	fmt.Print(renderMarkdown(answer))
	if len(experts) > 0 {
		fmt.Printf("\n(consulted %d expert(s))\n", len(experts))
	}
	return nil
}

func runDelta(ctx context.Context, app *appContext) error {
	results := app.service.Experts.Route(ctx, app.query)
	sopAnswer := results[orchestrator.SopAgentName]
	policyAnswer := results[orchestrator.PolicyAgentName]

	analysis, err := app.service.Delta.Analyze(ctx, app.query, sopAnswer, policyAnswer)
	if err != nil {
		return err
	}

	fmt.Print(renderMarkdown(analysis))
	return nil
}

func runTraces() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store, err := tracestore.NewSQLiteStore(cfg.Traces.DBPath)
	if err != nil {
		return fmt.Errorf("trace store: %w", err)
	}
	defer store.Close()

	traces, err := store.List(context.Background(), 20)
	if err != nil {
		return err
	}
	if len(traces) == 0 {
		fmt.Println("No traces recorded. Enable traces in config and run 'ragchat pipeline'.")
		return nil
	}

	for _, t := range traces {
		status := "ok"
		if !t.Success() {
			status = "degraded"
		}
		fmt.Printf("%s  %-8s  %6s  %5d tok  $%.4f  %s\n",
			t.ID, status, t.TotalDuration().Round(10*time.Millisecond), t.TotalTokens(), t.TotalCost(), t.Query)
	}
	return nil
}

// printTrace writes a per-stage summary table to stdout.
func printTrace(t *domain.PipelineTrace) {
	fmt.Printf("\ntrace %s (%s, %d tokens, $%.4f)\n", t.ID, t.TotalDuration().Round(time.Millisecond), t.TotalTokens(), t.TotalCost())
	for _, s := range t.Stages {
		mark := "ok"
		if !s.Success {
			mark = "FAIL: " + s.Error
		}
		fmt.Printf("  %-10s %8s  %5d tok  $%.4f  %s\n",
			s.Stage, s.Duration().Round(time.Millisecond), s.Tokens, s.Cost, mark)
	}
}

// renderMarkdown renders the answer for the terminal, falling back to the
// raw text when rendering is unavailable (e.g. piped output).
func renderMarkdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("RAGCHAT_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func queryFlag() string {
	for i, arg := range os.Args {
		if arg == "--query" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--query=") {
			return strings.TrimPrefix(arg, "--query=")
		}
	}
	return ""
}
