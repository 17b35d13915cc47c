package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewDomainError for operation-tagged errors.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrRateLimit     = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid   = fmt.Errorf("authentication failed")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the orchestration layer.
var (
	ErrAgentResolution = fmt.Errorf("agent resolution failed")
	ErrRunFailed       = fmt.Errorf("agent run failed")
	ErrPollTimeout     = fmt.Errorf("run polling: %w", ErrTimeout)
	ErrToolRounds      = fmt.Errorf("tool-call round limit reached")
	ErrToolNotFound    = fmt.Errorf("tool not found")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrTraceStore      = fmt.Errorf("trace store operation failed")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Runner.Resolve")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeInvalidInput    ErrorCode = "INVALID_INPUT"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid     ErrorCode = "AUTH_INVALID"
	CodeProviderError   ErrorCode = "PROVIDER_ERROR"
	CodeAgentResolution ErrorCode = "AGENT_RESOLUTION"
	CodeRunFailed       ErrorCode = "RUN_FAILED"
	CodePollTimeout     ErrorCode = "POLL_TIMEOUT"
	CodeToolRounds      ErrorCode = "TOOL_ROUNDS"
	CodeToolNotFound    ErrorCode = "TOOL_NOT_FOUND"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
	CodeTraceStore      ErrorCode = "TRACE_STORE"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// Order matters for wrapped sentinels: more specific entries are checked
// before their category parents in ErrorCodeOf.
var errorCodeMap = []struct {
	err  error
	code ErrorCode
}{
	{ErrAgentResolution, CodeAgentResolution},
	{ErrRunFailed, CodeRunFailed},
	{ErrPollTimeout, CodePollTimeout},
	{ErrToolRounds, CodeToolRounds},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrTraceStore, CodeTraceStore},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrTimeout, CodeTimeout},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrProviderError, CodeProviderError},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It walks the error chain with errors.Is; returns CodeUnknown when no
// sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, entry := range errorCodeMap {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeUnknown
}
