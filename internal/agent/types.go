// Package agent runs the assistant CLI and turns its streamed output into replies.
package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

const (
	DefaultTimeout    = 120 * time.Second
	DefaultWaitGrace  = 10 * time.Second
	DefaultStderrTail = 500
	DefaultModel      = "sonnet"

	// maxLineBytes bounds one stream-json record. Longer records are
	// skipped and the stream continues.
	maxLineBytes = 1024 * 1024
)

// DefaultSystemPrompt is used when the configured prompt file cannot be read.
const DefaultSystemPrompt = "You are a supervisor for the OpenClaw gateway. Help diagnose and fix issues."

// nestedSessionEnv lists variables that make the CLI believe it runs inside
// another assistant session, which changes its behavior.
var nestedSessionEnv = []string{"CLAUDECODE", "CLAUDE_CODE_ENTRYPOINT"}

// Config holds runner configuration.
type Config struct {
	Binary           string
	Model            string
	WorkDir          string
	SystemPromptPath string
	ExtraArgs        []string
	// Timeout is the wall-clock budget for reading the stream.
	Timeout time.Duration
	// WaitGrace bounds the wait for process exit after the stream ends.
	WaitGrace time.Duration
	// StderrTail is how many trailing characters of stderr a ProcessError keeps.
	StderrTail int
	// StripEnv overrides nestedSessionEnv when non-empty.
	StripEnv []string
}

// DefaultConfig returns default runner configuration.
func DefaultConfig() Config {
	return Config{
		Binary:     "claude",
		Model:      DefaultModel,
		Timeout:    DefaultTimeout,
		WaitGrace:  DefaultWaitGrace,
		StderrTail: DefaultStderrTail,
	}
}

// Outcome is a successful invocation.
type Outcome struct {
	Text         string
	SessionToken domain.SessionToken
	Resumed      bool
}

// ErrNoOutput means the process finished without any usable reply text.
var ErrNoOutput = errors.New("assistant produced no output")

// TimeoutError means the deadline passed while the stream was still open.
// The child process has been killed.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("assistant did not finish within %s", e.After)
}

// ProcessError means the process exited non-zero without producing text.
type ProcessError struct {
	Code int
	Tail string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("assistant exited with code %d", e.Code)
}

// StartError means the process could not be launched at all.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start assistant: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// Classify maps an Invoke error onto the journal's outcome kinds.
func Classify(err error) domain.OutcomeKind {
	var timeoutErr *TimeoutError
	var processErr *ProcessError
	switch {
	case err == nil:
		return domain.OutcomeOK
	case errors.As(err, &timeoutErr):
		return domain.OutcomeTimeout
	case errors.As(err, &processErr):
		return domain.OutcomeProcessError
	case errors.Is(err, ErrNoOutput):
		return domain.OutcomeNoOutput
	default:
		return domain.OutcomeFault
	}
}
