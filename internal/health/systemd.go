package health

import (
	"context"
	"fmt"
	"strings"
)

// SystemdManager talks to systemd through systemctl.
type SystemdManager struct {
	Unit string
	// User selects the per-user service manager.
	User bool
	run  CommandRunner
}

func (m *SystemdManager) Kind() string { return "systemd" }

func (m *SystemdManager) args(verb string, rest ...string) []string {
	var args []string
	if m.User {
		args = append(args, "--user")
	}
	args = append(args, verb, m.Unit)
	return append(args, rest...)
}

// Status reads the unit's load and active state.
func (m *SystemdManager) Status(ctx context.Context) (ServiceStatus, error) {
	out, err := m.run(ctx, "systemctl", m.args("show", "--property=LoadState,ActiveState,MainPID,ExecMainStatus")...)
	if err != nil {
		return ServiceStatus{}, err
	}
	props := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		if key, value, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			props[key] = value
		}
	}
	if props["LoadState"] == "" || props["LoadState"] == "not-found" {
		return ServiceStatus{}, nil
	}
	status := ServiceStatus{Loaded: true, ExitStatus: props["ExecMainStatus"]}
	if props["ActiveState"] == "active" && props["MainPID"] != "" && props["MainPID"] != "0" {
		status.Running = true
		status.PID = props["MainPID"]
	}
	return status, nil
}

func (m *SystemdManager) Restart(ctx context.Context) error {
	if _, err := m.run(ctx, "systemctl", m.args("restart")...); err != nil {
		return fmt.Errorf("restart unit %s: %w", m.Unit, err)
	}
	return nil
}
