package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Runner.Resolve", ErrAgentResolution, "persona 'Search Agent'")
	want := "Runner.Resolve: persona 'Search Agent': agent resolution failed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Runner.Run", ErrPollTimeout, "")
	want := "Runner.Run: run polling: operation timed out"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Client.StartRun", ErrRateLimit, "429")
	if !errors.Is(err, ErrRateLimit) {
		t.Error("errors.Is should match ErrRateLimit")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := NewDomainError("Delta.Analyze", ErrAgentResolution, "delta agent")
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "Delta.Analyze" {
		t.Errorf("Op = %q, want %q", de.Op, "Delta.Analyze")
	}
}

func TestErrorCodeOfDirectSentinel(t *testing.T) {
	assert.Equal(t, CodeAgentResolution, ErrorCodeOf(ErrAgentResolution))
	assert.Equal(t, CodeRunFailed, ErrorCodeOf(ErrRunFailed))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
}

func TestErrorCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("op", ErrToolNotFound, ""))
	assert.Equal(t, CodeToolNotFound, ErrorCodeOf(err))
}

func TestErrorCodeOfSpecificBeatsCategory(t *testing.T) {
	// ErrPollTimeout wraps ErrTimeout; the specific code must win.
	assert.Equal(t, CodePollTimeout, ErrorCodeOf(ErrPollTimeout))
}

func TestErrorCodeOfUnknown(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(errors.New("mystery")))
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestWrapOpNil(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
}
