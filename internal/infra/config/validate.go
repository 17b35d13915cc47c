package config

import "fmt"

// Validate checks cross-field consistency and required values.
func Validate(cfg *Config) error {
	if cfg.Service.Endpoint == "" {
		return fmt.Errorf("service.endpoint is required (set RAGCHAT_SERVICE_ENDPOINT)")
	}
	if cfg.Service.Model == "" {
		return fmt.Errorf("service.model is required")
	}
	if cfg.Runner.PollInterval <= 0 {
		return fmt.Errorf("runner.poll_interval must be positive")
	}
	if cfg.Runner.PollTimeout <= 0 {
		return fmt.Errorf("runner.poll_timeout must be positive")
	}
	if cfg.Runner.MaxToolRounds <= 0 {
		return fmt.Errorf("runner.max_tool_rounds must be positive")
	}
	if cfg.Cost.InputRatePer1K < 0 || cfg.Cost.OutputRatePer1K < 0 {
		return fmt.Errorf("cost rates must not be negative")
	}
	switch cfg.Cost.Tokenizer {
	case "", "heuristic", "tiktoken":
	default:
		return fmt.Errorf("cost.tokenizer must be one of: heuristic, tiktoken (got %q)", cfg.Cost.Tokenizer)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logger.format must be one of: text, json (got %q)", cfg.Logger.Format)
	}
	if cfg.Traces.Enabled && cfg.Traces.DBPath == "" {
		return fmt.Errorf("traces.db_path is required when traces are enabled")
	}
	return nil
}
