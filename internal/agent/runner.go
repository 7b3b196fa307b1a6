package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

// Runner invokes the assistant CLI once per user turn and streams its output.
type Runner struct {
	cfg      Config
	tokens   TokenStore
	launcher Launcher
	prompt   string
	environ  func() []string
	now      func() time.Time
}

// NewRunner creates a runner. The system prompt is read once here; a missing
// file falls back to DefaultSystemPrompt.
func NewRunner(cfg Config, tokens TokenStore, launcher Launcher) *Runner {
	defaults := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = defaults.Binary
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.WaitGrace <= 0 {
		cfg.WaitGrace = defaults.WaitGrace
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = defaults.StderrTail
	}
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	return &Runner{
		cfg:      cfg,
		tokens:   tokens,
		launcher: launcher,
		prompt:   loadSystemPrompt(cfg.SystemPromptPath),
		environ:  os.Environ,
		now:      time.Now,
	}
}

func loadSystemPrompt(path string) string {
	if path == "" {
		return DefaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("System prompt not readable, using default", "path", path, "error", err)
		return DefaultSystemPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return DefaultSystemPrompt
	}
	return prompt
}

// Invoke runs one turn for the conversation. Partial reply snapshots are sent
// on progress without blocking; when the receiver is busy a snapshot is
// dropped, since each one replaces the previous. progress may be nil.
//
// Any session token seen in the stream is stored for the conversation before
// Invoke returns, whatever the outcome.
func (r *Runner) Invoke(ctx context.Context, conversationID domain.ConversationID, text string, progress chan<- string) (out Outcome, err error) {
	token, resumed := r.tokens.Get(conversationID)
	cmd := r.command(token, resumed, text)

	logger := slog.With("chat_id", conversationID.String(), "resume", resumed)
	logger.Info("Invoking assistant", "prompt_len", len([]rune(text)))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	proc, err := r.launcher.Launch(runCtx, cmd)
	if err != nil {
		logger.Error("Failed to start assistant", "binary", r.cfg.Binary, "error", err)
		return Outcome{}, &StartError{Err: err}
	}

	var state streamState
	defer func() {
		if state.token != "" {
			r.tokens.Set(conversationID, state.token)
			out.SessionToken = state.token
		}
	}()

	lines := make(chan []byte)
	done := make(chan struct{})
	defer close(done)
	go readLines(proc, lines, done, logger)

	deadline := r.now().Add(r.cfg.Timeout)
	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

read:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break read
			}
			if r.now().After(deadline) {
				return Outcome{}, r.abort(proc, logger)
			}
			event, ok := ParseLine(line)
			if !ok {
				continue
			}
			if snapshot, ok := state.apply(event); ok && progress != nil {
				select {
				case progress <- snapshot:
				default:
					logger.Debug("Progress receiver busy, dropping snapshot")
				}
			}
		case <-timer.C:
			return Outcome{}, r.abort(proc, logger)
		case <-ctx.Done():
			killAndReap(proc)
			return Outcome{}, ctx.Err()
		}
	}

	code := r.waitExit(proc, logger)
	reply := state.finalText()
	logger.Info("Assistant finished", "exit_code", code, "records", state.records, "reply_len", len([]rune(reply)))

	if code != 0 && reply == "" {
		tail := lastRunes(proc.StderrTail(), r.cfg.StderrTail)
		logger.Error("Assistant exited with error", "exit_code", code, "stderr", tail)
		return Outcome{}, &ProcessError{Code: code, Tail: tail}
	}
	if reply == "" {
		return Outcome{}, ErrNoOutput
	}
	return Outcome{Text: reply, Resumed: resumed}, nil
}

func (r *Runner) command(token domain.SessionToken, resumed bool, text string) Command {
	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
		"--model", r.cfg.Model,
	}
	if resumed {
		args = append(args, "--resume", string(token))
	} else {
		args = append(args, "--append-system-prompt", r.prompt)
	}
	args = append(args, r.cfg.ExtraArgs...)
	args = append(args, text)

	strip := r.cfg.StripEnv
	if len(strip) == 0 {
		strip = nestedSessionEnv
	}
	return Command{
		Path: r.cfg.Binary,
		Args: args,
		Dir:  r.cfg.WorkDir,
		Env:  sanitizeEnv(r.environ(), strip),
	}
}

// abort kills a process that overran its deadline.
func (r *Runner) abort(proc Process, logger *slog.Logger) error {
	logger.Warn("Assistant timed out, killing process", "timeout", r.cfg.Timeout)
	killAndReap(proc)
	return &TimeoutError{After: r.cfg.Timeout}
}

// waitExit waits for the process after its stream closed. A process that
// lingers past the grace period is killed and reported as exit code -1.
func (r *Runner) waitExit(proc Process, logger *slog.Logger) int {
	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	grace := time.NewTimer(r.cfg.WaitGrace)
	defer grace.Stop()

	select {
	case err := <-exited:
		var exitErr interface{ ExitCode() int }
		if err != nil && !errors.As(err, &exitErr) {
			logger.Warn("Wait for assistant failed", "error", err)
		}
		return proc.ExitCode()
	case <-grace.C:
		logger.Warn("Assistant did not exit after output ended, killing", "grace", r.cfg.WaitGrace)
		if err := proc.Kill(); err != nil {
			logger.Debug("Kill after grace failed", "error", err)
		}
		<-exited
		return -1
	}
}

// readLines delivers stdout one record at a time. A record longer than
// maxLineBytes is discarded up to its newline and reading continues.
func readLines(proc Process, lines chan<- []byte, done <-chan struct{}, logger *slog.Logger) {
	defer close(lines)
	reader := bufio.NewReaderSize(proc.Stdout(), 64*1024)

	var line []byte
	discarded := 0
	for {
		chunk, err := reader.ReadSlice('\n')
		if discarded > 0 || len(line)+len(chunk) > maxLineBytes {
			discarded += len(line) + len(chunk)
			line = nil
		} else {
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if discarded > 0 {
			logger.Warn("Skipping oversized stream record", "bytes", discarded, "limit", maxLineBytes)
		} else if record := bytes.TrimRight(line, "\r\n"); len(record) > 0 {
			select {
			case lines <- record:
			case <-done:
				return
			}
		}
		line = nil
		discarded = 0

		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("Assistant stream ended with error", "error", err)
			}
			return
		}
	}
}

// killAndReap kills the process and collects its exit status in the
// background so no zombie is left behind.
func killAndReap(proc Process) {
	if err := proc.Kill(); err != nil {
		slog.Debug("Kill assistant failed", "error", err)
	}
	go func() { _ = proc.Wait() }()
}

// sanitizeEnv copies environ without the named variables.
func sanitizeEnv(environ []string, strip []string) []string {
	out := make([]string, 0, len(environ))
	for _, kv := range environ {
		name, _, _ := strings.Cut(kv, "=")
		drop := false
		for _, s := range strip {
			if name == s {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, kv)
		}
	}
	return out
}
