package agent

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/session"
)

type fakeProcess struct {
	stdout *io.PipeReader
	w      *io.PipeWriter
	exited chan struct{}
	once   sync.Once
	code   int
	stderr string
	killed atomic.Bool
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{stdout: r, w: w, exited: make(chan struct{})}
}

func (p *fakeProcess) emit(lines ...string) {
	for _, line := range lines {
		if _, err := io.WriteString(p.w, line+"\n"); err != nil {
			return
		}
	}
}

func (p *fakeProcess) closeStdout() { _ = p.w.Close() }

func (p *fakeProcess) exit(code int) {
	p.closeStdout()
	p.once.Do(func() {
		p.code = code
		close(p.exited)
	})
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

func (p *fakeProcess) ExitCode() int { return p.code }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.closeStdout()
	p.once.Do(func() {
		p.code = -1
		close(p.exited)
	})
	return nil
}

func (p *fakeProcess) StderrTail() string { return p.stderr }

type fakeLauncher struct {
	mu      sync.Mutex
	cmds    []Command
	proc    *fakeProcess
	script  func(p *fakeProcess)
	failErr error
}

func (l *fakeLauncher) Launch(_ context.Context, cmd Command) (Process, error) {
	l.mu.Lock()
	l.cmds = append(l.cmds, cmd)
	l.mu.Unlock()
	if l.failErr != nil {
		return nil, l.failErr
	}
	l.proc = newFakeProcess()
	if l.script != nil {
		go l.script(l.proc)
	}
	return l.proc, nil
}

func (l *fakeLauncher) lastCommand() Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cmds[len(l.cmds)-1]
}

func newTestRunner(cfg Config, tokens TokenStore, launcher Launcher) *Runner {
	r := NewRunner(cfg, tokens, launcher)
	r.environ = func() []string { return []string{"PATH=/usr/bin", "HOME=/home/op"} }
	return r
}

func drain(ch chan string) []string {
	var out []string
	for {
		select {
		case s := <-ch:
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestRunner_StreamsProgressAndResult(t *testing.T) {
	registry := session.NewRegistry()
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(
			`{"type":"system","subtype":"init","session_id":"s1"}`,
			`{"type":"assistant","message":{"content":[{"type":"text","text":"He"}]},"session_id":"s1"}`,
			`{"type":"assistant","message":{"content":[{"type":"text","text":"Hello"}]}}`,
			`{"type":"result","subtype":"success","result":"Hello!","session_id":"s1"}`,
		)
		p.exit(0)
	}}
	runner := newTestRunner(Config{}, registry, launcher)

	progress := make(chan string, 10)
	out, err := runner.Invoke(context.Background(), 7, "hi", progress)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Text != "Hello!" {
		t.Errorf("Text = %q, want %q", out.Text, "Hello!")
	}
	if out.SessionToken != "s1" {
		t.Errorf("SessionToken = %q, want s1", out.SessionToken)
	}
	if got, _ := registry.Get(7); got != "s1" {
		t.Errorf("registry token = %q, want s1", got)
	}
	if got := drain(progress); !slices.Equal(got, []string{"He", "Hello"}) {
		t.Errorf("progress = %q, want [He Hello]", got)
	}
}

func TestRunner_FallsBackToLastSnapshot(t *testing.T) {
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"assistant","message":"partial answer"}`, `not json`, ``)
		p.exit(0)
	}}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)

	out, err := runner.Invoke(context.Background(), 1, "q", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Text != "partial answer" {
		t.Errorf("Text = %q, want %q", out.Text, "partial answer")
	}
}

func TestRunner_CommandArguments(t *testing.T) {
	registry := session.NewRegistry()
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"result","result":"ok"}`)
		p.exit(0)
	}}
	runner := newTestRunner(Config{Model: "opus", WorkDir: "/srv"}, registry, launcher)

	if _, err := runner.Invoke(context.Background(), 1, "first", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	fresh := launcher.lastCommand()
	if !slices.Contains(fresh.Args, "--append-system-prompt") || slices.Contains(fresh.Args, "--resume") {
		t.Errorf("fresh args = %q, want system prompt and no resume", fresh.Args)
	}
	if fresh.Args[len(fresh.Args)-1] != "first" {
		t.Errorf("last arg = %q, want prompt text", fresh.Args[len(fresh.Args)-1])
	}
	if i := slices.Index(fresh.Args, "--model"); i < 0 || fresh.Args[i+1] != "opus" {
		t.Errorf("args = %q, want --model opus", fresh.Args)
	}
	if fresh.Dir != "/srv" {
		t.Errorf("Dir = %q, want /srv", fresh.Dir)
	}

	registry.Set(1, "abc")
	out, err := runner.Invoke(context.Background(), 1, "second", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if !out.Resumed {
		t.Error("Resumed = false, want true")
	}
	resumed := launcher.lastCommand()
	i := slices.Index(resumed.Args, "--resume")
	if i < 0 || resumed.Args[i+1] != "abc" {
		t.Errorf("resumed args = %q, want --resume abc", resumed.Args)
	}
	if slices.Contains(resumed.Args, "--append-system-prompt") {
		t.Errorf("resumed args = %q, want no system prompt", resumed.Args)
	}
}

func TestRunner_StripsNestedSessionEnv(t *testing.T) {
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"result","result":"ok"}`)
		p.exit(0)
	}}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)
	runner.environ = func() []string {
		return []string{"PATH=/bin", "CLAUDECODE=1", "CLAUDE_CODE_ENTRYPOINT=cli", "CLAUDECODE_X=keep"}
	}

	if _, err := runner.Invoke(context.Background(), 1, "q", nil); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := []string{"PATH=/bin", "CLAUDECODE_X=keep"}
	if got := launcher.lastCommand().Env; !slices.Equal(got, want) {
		t.Errorf("Env = %q, want %q", got, want)
	}
}

func TestRunner_TimeoutKillsProcessAndKeepsToken(t *testing.T) {
	registry := session.NewRegistry()
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"system","subtype":"init","session_id":"s2"}`)
		<-p.exited
	}}
	runner := newTestRunner(Config{Timeout: 50 * time.Millisecond}, registry, launcher)

	start := time.Now()
	_, err := runner.Invoke(context.Background(), 3, "slow", nil)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Invoke() error = %v, want *TimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Invoke took %s after a 50ms timeout", elapsed)
	}
	if !launcher.proc.killed.Load() {
		t.Error("process was not killed")
	}
	if got, _ := registry.Get(3); got != "s2" {
		t.Errorf("registry token = %q, want s2", got)
	}
	if Classify(err) != domain.OutcomeTimeout {
		t.Errorf("Classify() = %q, want timeout", Classify(err))
	}
}

func TestRunner_ProcessErrorCarriesStderrTail(t *testing.T) {
	long := strings.Repeat("x", 600) + "END"
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.stderr = long
		p.exit(2)
	}}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)

	_, err := runner.Invoke(context.Background(), 1, "q", nil)
	var processErr *ProcessError
	if !errors.As(err, &processErr) {
		t.Fatalf("Invoke() error = %v, want *ProcessError", err)
	}
	if processErr.Code != 2 {
		t.Errorf("Code = %d, want 2", processErr.Code)
	}
	if len(processErr.Tail) != DefaultStderrTail || !strings.HasSuffix(processErr.Tail, "END") {
		t.Errorf("Tail has len %d, want %d ending in END", len(processErr.Tail), DefaultStderrTail)
	}
}

func TestRunner_NonZeroExitWithTextSucceeds(t *testing.T) {
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"result","result":"done anyway"}`)
		p.exit(1)
	}}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)

	out, err := runner.Invoke(context.Background(), 1, "q", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Text != "done anyway" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestRunner_NoOutput(t *testing.T) {
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"system","subtype":"init"}`, `{"type":"result","subtype":"error_max_turns"}`)
		p.exit(0)
	}}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)

	_, err := runner.Invoke(context.Background(), 1, "q", nil)
	if !errors.Is(err, ErrNoOutput) {
		t.Fatalf("Invoke() error = %v, want ErrNoOutput", err)
	}
}

func TestRunner_KillsProcessThatOutlivesStream(t *testing.T) {
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(`{"type":"result","result":"answer"}`)
		p.closeStdout()
	}}
	runner := newTestRunner(Config{WaitGrace: 30 * time.Millisecond}, session.NewRegistry(), launcher)

	out, err := runner.Invoke(context.Background(), 1, "q", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Text != "answer" {
		t.Errorf("Text = %q, want answer", out.Text)
	}
	if !launcher.proc.killed.Load() {
		t.Error("lingering process was not killed")
	}
}

func TestRunner_SkipsOversizedRecord(t *testing.T) {
	registry := session.NewRegistry()
	huge := `{"type":"user","message":{"content":[{"type":"tool_result","content":"` +
		strings.Repeat("x", 2*maxLineBytes) + `"}]}}`
	launcher := &fakeLauncher{script: func(p *fakeProcess) {
		p.emit(
			`{"type":"assistant","message":"Reading the file"}`,
			huge,
			`{"type":"result","result":"Final answer","session_id":"s9"}`,
		)
		p.exit(0)
	}}
	runner := newTestRunner(Config{WaitGrace: time.Second}, registry, launcher)

	out, err := runner.Invoke(context.Background(), 3, "read it", nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out.Text != "Final answer" {
		t.Errorf("Text = %q, want the result after the oversized record", out.Text)
	}
	if tok, _ := registry.Get(3); tok != "s9" {
		t.Errorf("token = %q, want s9", tok)
	}
	if launcher.proc.killed.Load() {
		t.Error("process that exited normally was killed")
	}
}

func TestRunner_StartFailure(t *testing.T) {
	launcher := &fakeLauncher{failErr: errors.New("executable file not found")}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)

	_, err := runner.Invoke(context.Background(), 1, "q", nil)
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Invoke() error = %v, want *StartError", err)
	}
	if Classify(err) != domain.OutcomeFault {
		t.Errorf("Classify() = %q, want fault", Classify(err))
	}
}

func TestRunner_ContextCancelled(t *testing.T) {
	launcher := &fakeLauncher{script: func(p *fakeProcess) { <-p.exited }}
	runner := newTestRunner(Config{}, session.NewRegistry(), launcher)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := runner.Invoke(ctx, 1, "q", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Invoke() error = %v, want context.Canceled", err)
	}
}
