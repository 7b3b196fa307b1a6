package agent

import (
	"context"
	"io"

	"github.com/ashureev/supervisor/internal/domain"
)

// TokenStore is the slice of the session registry the runner needs.
type TokenStore interface {
	Get(conversationID domain.ConversationID) (domain.SessionToken, bool)
	Set(conversationID domain.ConversationID, token domain.SessionToken)
}

// Command is a fully resolved process invocation.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string
}

// Launcher starts assistant processes. ExecLauncher is the production
// implementation; tests substitute scripted processes.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// Process is a running assistant.
type Process interface {
	// Stdout streams the process output. It reaches EOF when the process
	// exits or is killed.
	Stdout() io.Reader
	// Wait blocks until the process exits. Call it only after Stdout is drained
	// or the process has been killed.
	Wait() error
	// ExitCode is valid after Wait returns; -1 when the process was killed.
	ExitCode() int
	// Kill terminates the process immediately.
	Kill() error
	// StderrTail returns the trailing bytes of stderr captured so far.
	StderrTail() string
}

// Ensure the runner satisfies the coordinator's view of it.
var _ Invoker = (*Runner)(nil)

// Invoker runs one assistant turn.
type Invoker interface {
	Invoke(ctx context.Context, conversationID domain.ConversationID, text string, progress chan<- string) (Outcome, error)
}
