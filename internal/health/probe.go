package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

const (
	DefaultPort         = 18789
	DefaultProbeTimeout = 5 * time.Second
	DefaultErrorLog     = "gateway.err.log"
	DefaultServiceLog   = "gateway.log"
	errorLogLines       = 3
)

// Config describes what the probe checks.
type Config struct {
	// Label prefixes the liveness line of the summary.
	Label      string
	Host       string
	Port       int
	LogDir     string
	ErrorLog   string
	ServiceLog string
	Timeout    time.Duration
}

// DefaultConfig returns the settings for an OpenClaw gateway.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Label:      "Gateway",
		Host:       "127.0.0.1",
		Port:       DefaultPort,
		LogDir:     filepath.Join(home, ".openclaw", "logs"),
		ErrorLog:   DefaultErrorLog,
		ServiceLog: DefaultServiceLog,
		Timeout:    DefaultProbeTimeout,
	}
}

// Probe combines service liveness, port and error log checks into a verdict.
type Probe struct {
	cfg     Config
	manager ServiceManager
	dial    func(ctx context.Context, network, address string) (net.Conn, error)
	now     func() time.Time
}

// NewProbe creates a probe. Zero fields of cfg take defaults.
func NewProbe(cfg Config, manager ServiceManager) *Probe {
	defaults := DefaultConfig()
	if cfg.Label == "" {
		cfg.Label = defaults.Label
	}
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.Port == 0 {
		cfg.Port = defaults.Port
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaults.LogDir
	}
	if cfg.ErrorLog == "" {
		cfg.ErrorLog = defaults.ErrorLog
	}
	if cfg.ServiceLog == "" {
		cfg.ServiceLog = defaults.ServiceLog
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	var dialer net.Dialer
	return &Probe{cfg: cfg, manager: manager, dial: dialer.DialContext, now: time.Now}
}

// Manager returns the service manager the probe queries.
func (p *Probe) Manager() ServiceManager {
	return p.manager
}

// Logs returns a reader over the service's log files, error log first.
func (p *Probe) Logs() LogReader {
	return LogReader{Dir: p.cfg.LogDir, Files: []string{p.cfg.ErrorLog, p.cfg.ServiceLog}}
}

// Probe runs all checks. A check that cannot run becomes a summary line and
// does not count toward the verdict; the error log is informational only.
// The only error returned is the context's.
func (p *Probe) Probe(ctx context.Context) (domain.HealthVerdict, error) {
	var lines []string
	healthy := true

	line, ok := p.checkService(ctx)
	lines = append(lines, line)
	healthy = healthy && ok

	line, ok = p.checkPort(ctx)
	lines = append(lines, line)
	healthy = healthy && ok

	lines = append(lines, p.checkErrorLog())

	if err := ctx.Err(); err != nil {
		return domain.HealthVerdict{}, err
	}
	return domain.HealthVerdict{
		Healthy:   healthy,
		Summary:   strings.Join(lines, "\n"),
		CheckedAt: p.now(),
	}, nil
}

// checkService returns the liveness line and whether it passed. A manager
// error passes, since nothing was evaluated.
func (p *Probe) checkService(ctx context.Context) (string, bool) {
	if p.manager == nil {
		return fmt.Sprintf("%s: no service manager configured", p.cfg.Label), true
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	status, err := p.manager.Status(ctx)
	switch {
	case err != nil:
		slog.Warn("Service liveness check failed", "manager", p.manager.Kind(), "error", err)
		return fmt.Sprintf("%s: %s check failed (%v)", p.cfg.Label, p.manager.Kind(), err), true
	case !status.Loaded:
		return fmt.Sprintf("%s: NOT loaded in %s", p.cfg.Label, p.manager.Kind()), false
	case !status.Running:
		return fmt.Sprintf("%s: NOT running (no PID)", p.cfg.Label), false
	case status.ExitStatus != "":
		return fmt.Sprintf("%s: PID %s (exit status %s)", p.cfg.Label, status.PID, status.ExitStatus), true
	default:
		return fmt.Sprintf("%s: PID %s", p.cfg.Label, status.PID), true
	}
}

func (p *Probe) checkPort(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	address := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	conn, err := p.dial(ctx, "tcp", address)
	if err == nil {
		_ = conn.Close()
		return fmt.Sprintf("Port %d: LISTENING", p.cfg.Port), true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Sprintf("Port %d: NOT listening", p.cfg.Port), false
	}
	slog.Warn("Port check failed", "address", address, "error", err)
	return fmt.Sprintf("Port check: failed (%v)", err), true
}

func (p *Probe) checkErrorLog() string {
	lines, err := tailLines(filepath.Join(p.cfg.LogDir, p.cfg.ErrorLog), errorLogLines)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "Error log not found."
	case err != nil:
		return fmt.Sprintf("Error log unreadable (%v)", err)
	case len(lines) == 0:
		return "No recent errors in log."
	default:
		return "Recent errors:\n" + strings.Join(lines, "\n")
	}
}

// restartTimeout bounds the service manager's restart command.
const restartTimeout = 10 * time.Second

// Restart asks the service manager to restart the service, waits for it to
// settle, and probes again.
func (p *Probe) Restart(ctx context.Context, settle time.Duration) (domain.HealthVerdict, error) {
	if p.manager == nil {
		return domain.HealthVerdict{}, errors.New("no service manager configured")
	}
	restartCtx, cancel := context.WithTimeout(ctx, restartTimeout)
	err := p.manager.Restart(restartCtx)
	cancel()
	if err != nil {
		return domain.HealthVerdict{}, err
	}
	slog.Info("Service restart issued", "manager", p.manager.Kind())

	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return domain.HealthVerdict{}, ctx.Err()
	}
	return p.Probe(ctx)
}
