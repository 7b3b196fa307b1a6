package health

import (
	"context"
	"fmt"
	"strings"
)

// LaunchctlManager talks to launchd on macOS.
type LaunchctlManager struct {
	// Label is matched as a substring of `launchctl list` lines.
	Label string
	// Target is the kickstart target, e.g. gui/501/ai.openclaw.gateway.
	Target string
	run    CommandRunner
}

func (m *LaunchctlManager) Kind() string { return "launchctl" }

// Status parses the PID and last exit status columns of `launchctl list`.
func (m *LaunchctlManager) Status(ctx context.Context) (ServiceStatus, error) {
	out, err := m.run(ctx, "launchctl", "list")
	if err != nil {
		return ServiceStatus{}, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, m.Label) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		status := ServiceStatus{Loaded: true, ExitStatus: fields[1]}
		if fields[0] != "-" {
			status.Running = true
			status.PID = fields[0]
		}
		return status, nil
	}
	return ServiceStatus{}, nil
}

// Restart kills and relaunches the job.
func (m *LaunchctlManager) Restart(ctx context.Context) error {
	if _, err := m.run(ctx, "launchctl", "kickstart", "-k", m.Target); err != nil {
		return fmt.Errorf("kickstart %s: %w", m.Target, err)
	}
	return nil
}
