package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Runner   RunnerConfig   `yaml:"runner"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cost     CostConfig     `yaml:"cost"`
	Personas PersonasConfig `yaml:"personas"`
	Traces   TracesConfig   `yaml:"traces"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// ServiceConfig holds connection settings for the hosted agent service.
type ServiceConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`

	// Client-side request throttle. The polling protocol is chatty; the
	// limiter keeps a busy pipeline from hammering the service.
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// PoolConfig holds HTTP connection pool settings for the service client.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for the service client.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RunnerConfig holds agent runner behavior settings.
type RunnerConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
	MaxToolRounds int           `yaml:"max_tool_rounds"`
}

// PipelineConfig tunes pipeline composition.
type PipelineConfig struct {
	// CombineReviewExecute collapses the review and format stages into one
	// combined persona, producing a four-stage pipeline.
	CombineReviewExecute bool `yaml:"combine_review_execute"`
}

// CostConfig holds token/cost estimation settings. The rates are placeholder
// pricing, not a billing signal.
type CostConfig struct {
	InputRatePer1K  float64 `yaml:"input_rate_per_1k"`
	OutputRatePer1K float64 `yaml:"output_rate_per_1k"`

	// Tokenizer selects the counting strategy: "heuristic" (length/4,
	// deterministic) or "tiktoken" (BPE count for TokenizerModel).
	Tokenizer      string `yaml:"tokenizer"`
	TokenizerModel string `yaml:"tokenizer_model"`
}

// PersonasConfig carries pre-provisioned agent registrations. A non-empty id
// is the preferred resolution path; name-based find-or-create is the
// fallback convenience.
type PersonasConfig struct {
	SopAgentID    string `yaml:"sop_agent_id"`
	PolicyAgentID string `yaml:"policy_agent_id"`

	// ValidateIDs opts into checking pre-provisioned ids against the
	// service before trusting them.
	ValidateIDs bool `yaml:"validate_ids"`
}

// TracesConfig holds pipeline trace persistence settings.
type TracesConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// defaultDataDir returns the persistent data directory under $HOME/.ragchat.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".ragchat")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Model:          "gpt-4o",
			ConnTimeout:    30 * time.Second,
			RespTimeout:    120 * time.Second,
			RateLimitRPS:   10,
			RateLimitBurst: 20,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Runner: RunnerConfig{
			PollInterval:  time.Second,
			PollTimeout:   120 * time.Second,
			MaxToolRounds: 8,
		},
		Cost: CostConfig{
			InputRatePer1K:  0.01,
			OutputRatePer1K: 0.03,
			Tokenizer:       "heuristic",
			TokenizerModel:  "gpt-4o",
		},
		Traces: TracesConfig{
			Enabled: false,
			DBPath:  filepath.Join(defaultDataDir(), "traces.db"),
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file is not an error: defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	passphrase := os.Getenv("RAGCHAT_CONFIG_KEY")
	if passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps RAGCHAT_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAGCHAT_SERVICE_ENDPOINT"); v != "" {
		cfg.Service.Endpoint = v
	}
	if v := os.Getenv("RAGCHAT_SERVICE_API_KEY"); v != "" {
		cfg.Service.APIKey = v
	}
	if v := os.Getenv("RAGCHAT_SERVICE_MODEL"); v != "" {
		cfg.Service.Model = v
	}
	if v := os.Getenv("RAGCHAT_SOP_AGENT_ID"); v != "" {
		cfg.Personas.SopAgentID = v
	}
	if v := os.Getenv("RAGCHAT_POLICY_AGENT_ID"); v != "" {
		cfg.Personas.PolicyAgentID = v
	}
	if v := os.Getenv("RAGCHAT_PERSONAS_VALIDATE_IDS"); v == "true" {
		cfg.Personas.ValidateIDs = true
	}
	if v := os.Getenv("RAGCHAT_RUNNER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Runner.PollInterval = d
		}
	}
	if v := os.Getenv("RAGCHAT_RUNNER_POLL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Runner.PollTimeout = d
		}
	}
	if v := os.Getenv("RAGCHAT_RUNNER_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Runner.MaxToolRounds = n
		}
	}
	if v := os.Getenv("RAGCHAT_PIPELINE_COMBINE_REVIEW_EXECUTE"); v == "true" {
		cfg.Pipeline.CombineReviewExecute = true
	}
	if v := os.Getenv("RAGCHAT_COST_TOKENIZER"); v != "" {
		cfg.Cost.Tokenizer = v
	}
	if v := os.Getenv("RAGCHAT_TRACES_ENABLED"); v == "true" {
		cfg.Traces.Enabled = true
	}
	if v := os.Getenv("RAGCHAT_TRACES_DB_PATH"); v != "" {
		cfg.Traces.DBPath = v
	}
	if v := os.Getenv("RAGCHAT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("RAGCHAT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("RAGCHAT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("RAGCHAT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	if strings.HasPrefix(cfg.Service.APIKey, "enc:") {
		decrypted, err := DecryptValue(strings.TrimPrefix(cfg.Service.APIKey, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("service api_key: %w", err)
		}
		cfg.Service.APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable).
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
