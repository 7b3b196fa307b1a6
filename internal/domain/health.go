package domain

import "time"

// HealthVerdict is the outcome of one health probe.
// Summary is for humans only; control decisions use Healthy.
type HealthVerdict struct {
	Healthy   bool      `json:"healthy"`
	Summary   string    `json:"summary"`
	CheckedAt time.Time `json:"checked_at"`
}

// WatchdogState is the edge-trigger memory of the watchdog.
// AlertSent is only ever true while LastKnownHealthy is false.
type WatchdogState struct {
	LastKnownHealthy bool `json:"last_known_healthy"`
	AlertSent        bool `json:"alert_sent"`
}

// TransitionKind names a watchdog state change.
type TransitionKind string

const (
	// TransitionNone means the iteration changed nothing.
	TransitionNone TransitionKind = ""
	// TransitionDown is Healthy -> UnhealthyAlerted.
	TransitionDown TransitionKind = "down"
	// TransitionRecovered is UnhealthyAlerted -> Healthy.
	TransitionRecovered TransitionKind = "recovered"
)

// HealthTransition records a state change observed by the watchdog.
type HealthTransition struct {
	ID         int64          `json:"id"`
	Kind       TransitionKind `json:"kind"`
	Summary    string         `json:"summary"`
	OccurredAt time.Time      `json:"occurred_at"`
}
