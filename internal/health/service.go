// Package health probes the supervised service and controls it through its
// service manager.
package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ServiceStatus is what a service manager reports about the supervised service.
type ServiceStatus struct {
	// Loaded is false when the manager does not know the service at all.
	Loaded  bool
	Running bool
	PID     string
	// ExitStatus is the last exit status when the manager reports one.
	ExitStatus string
}

// ServiceManager reports on and restarts the supervised service.
type ServiceManager interface {
	// Kind names the backend in summaries, e.g. "launchctl".
	Kind() string
	Status(ctx context.Context) (ServiceStatus, error)
	Restart(ctx context.Context) error
}

// CommandRunner runs an external tool and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return out, fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(string(out)))
		}
		return out, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}

// NewServiceManager builds the backend named by kind: launchctl, systemd or
// docker. name is the launchd label, systemd unit or container name; target
// is backend specific (launchctl domain target, "user" for systemd user units).
func NewServiceManager(kind, name, target string, run CommandRunner) (ServiceManager, error) {
	if run == nil {
		run = ExecRunner
	}
	switch kind {
	case "", "launchctl":
		if target == "" {
			target = fmt.Sprintf("gui/%d/%s", os.Getuid(), name)
		}
		return &LaunchctlManager{Label: name, Target: target, run: run}, nil
	case "systemd":
		return &SystemdManager{Unit: name, User: target == "user", run: run}, nil
	case "docker":
		m, err := NewDockerManager(name)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown service manager %q", kind)
	}
}
