// Package watchdog polls the health probe and raises edge-triggered alerts.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

// DefaultInterval is the time between probes.
const DefaultInterval = 60 * time.Second

// Prober produces a health verdict.
type Prober interface {
	Probe(ctx context.Context) (domain.HealthVerdict, error)
}

// Notifier receives watchdog transitions.
type Notifier interface {
	Notify(ctx context.Context, transition domain.HealthTransition)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, transition domain.HealthTransition)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, transition domain.HealthTransition) {
	f(ctx, transition)
}

// Snapshot is a point-in-time view of the watchdog for status reporting.
type Snapshot struct {
	State       domain.WatchdogState `json:"state"`
	LastVerdict domain.HealthVerdict `json:"last_verdict"`
	Probes      int                  `json:"probes"`
	Failures    int                  `json:"failures"`
}

// Watchdog owns the alert state machine. It starts healthy so nothing is
// sent at startup.
type Watchdog struct {
	prober    Prober
	interval  time.Duration
	notifiers []Notifier
	now       func() time.Time

	mu       sync.Mutex
	state    domain.WatchdogState
	last     domain.HealthVerdict
	probes   int
	failures int
}

// New creates a watchdog. Notifiers are called in order for every transition.
func New(prober Prober, interval time.Duration, notifiers ...Notifier) *Watchdog {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watchdog{
		prober:    prober,
		interval:  interval,
		notifiers: notifiers,
		now:       time.Now,
		state:     domain.WatchdogState{LastKnownHealthy: true},
	}
}

// Run probes every interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	slog.Info("Watchdog started", "interval", w.interval)

	for {
		select {
		case <-ticker.C:
			w.Step(ctx)
		case <-ctx.Done():
			slog.Info("Watchdog shutting down", "reason", ctx.Err())
			return
		}
	}
}

// Step runs one probe and applies the resulting transition. A probe that
// errors or panics leaves the state untouched.
func (w *Watchdog) Step(ctx context.Context) domain.TransitionKind {
	verdict, err := w.probe(ctx)

	w.mu.Lock()
	w.probes++
	if err != nil {
		w.failures++
		w.mu.Unlock()
		slog.Error("Watchdog probe failed", "error", err)
		return domain.TransitionNone
	}
	next, kind := advance(w.state, verdict.Healthy)
	w.state = next
	w.last = verdict
	w.mu.Unlock()

	if kind == domain.TransitionNone {
		return kind
	}

	transition := domain.HealthTransition{Kind: kind, Summary: verdict.Summary, OccurredAt: w.now()}
	switch kind {
	case domain.TransitionDown:
		slog.Warn("Watchdog: service is down")
	case domain.TransitionRecovered:
		slog.Info("Watchdog: service recovered")
	}
	for _, n := range w.notifiers {
		w.notify(ctx, n, transition)
	}
	return kind
}

// Snapshot returns the current state and the last verdict.
func (w *Watchdog) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{State: w.state, LastVerdict: w.last, Probes: w.probes, Failures: w.failures}
}

func (w *Watchdog) probe(ctx context.Context) (verdict domain.HealthVerdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return w.prober.Probe(ctx)
}

func (w *Watchdog) notify(ctx context.Context, n Notifier, transition domain.HealthTransition) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Watchdog notifier panicked", "kind", transition.Kind, "panic", r)
		}
	}()
	n.Notify(ctx, transition)
}

// advance is the alert state machine.
func advance(state domain.WatchdogState, healthy bool) (domain.WatchdogState, domain.TransitionKind) {
	switch {
	case !healthy && !state.AlertSent:
		return domain.WatchdogState{LastKnownHealthy: false, AlertSent: true}, domain.TransitionDown
	case !healthy:
		return state, domain.TransitionNone
	case !state.LastKnownHealthy:
		return domain.WatchdogState{LastKnownHealthy: true}, domain.TransitionRecovered
	default:
		return domain.WatchdogState{LastKnownHealthy: true}, domain.TransitionNone
	}
}
