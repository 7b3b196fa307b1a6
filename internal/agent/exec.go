package agent

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// stderrCapacity is how many bytes of stderr are retained per process.
const stderrCapacity = 8 * 1024

// ExecLauncher starts real child processes.
type ExecLauncher struct{}

// Launch implements Launcher.
func (ExecLauncher) Launch(ctx context.Context, c Command) (Process, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	configureProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	// Grandchildren may hold the pipes open after the CLI exits.
	cmd.WaitDelay = 5 * time.Second

	stderr := newTailBuffer(stderrCapacity)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr *tailBuffer
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

func (p *execProcess) Kill() error { return killProcessGroup(p.cmd) }

func (p *execProcess) StderrTail() string { return p.stderr.String() }
