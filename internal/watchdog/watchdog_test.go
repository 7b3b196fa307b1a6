package watchdog

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/supervisor/internal/domain"
)

type scriptedProber struct {
	mu    sync.Mutex
	steps []func() (domain.HealthVerdict, error)
	calls int
}

func (p *scriptedProber) Probe(context.Context) (domain.HealthVerdict, error) {
	p.mu.Lock()
	step := p.steps[p.calls%len(p.steps)]
	p.calls++
	p.mu.Unlock()
	return step()
}

func verdict(healthy bool) func() (domain.HealthVerdict, error) {
	return func() (domain.HealthVerdict, error) {
		summary := "Gateway: PID 1"
		if !healthy {
			summary = "Gateway: NOT running (no PID)"
		}
		return domain.HealthVerdict{Healthy: healthy, Summary: summary}, nil
	}
}

type recorder struct {
	mu   sync.Mutex
	seen []domain.HealthTransition
}

func (r *recorder) Notify(_ context.Context, t domain.HealthTransition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, t)
}

func (r *recorder) kinds() []domain.TransitionKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TransitionKind
	for _, t := range r.seen {
		out = append(out, t.Kind)
	}
	return out
}

func TestWatchdog_DownThenRecovered(t *testing.T) {
	prober := &scriptedProber{steps: []func() (domain.HealthVerdict, error){
		verdict(true), verdict(false), verdict(false), verdict(true),
	}}
	rec := &recorder{}
	w := New(prober, time.Minute, rec)

	var got []domain.TransitionKind
	for range 4 {
		got = append(got, w.Step(context.Background()))
	}

	want := []domain.TransitionKind{domain.TransitionNone, domain.TransitionDown, domain.TransitionNone, domain.TransitionRecovered}
	if !slices.Equal(got, want) {
		t.Errorf("Step() kinds = %q, want %q", got, want)
	}
	if notified := rec.kinds(); !slices.Equal(notified, []domain.TransitionKind{domain.TransitionDown, domain.TransitionRecovered}) {
		t.Errorf("notified = %q, want [down recovered]", notified)
	}
	if rec.seen[0].Summary != "Gateway: NOT running (no PID)" {
		t.Errorf("down summary = %q", rec.seen[0].Summary)
	}
	if s := w.Snapshot(); !s.State.LastKnownHealthy || s.State.AlertSent || s.Probes != 4 {
		t.Errorf("Snapshot() = %+v", s)
	}
}

func TestWatchdog_StartsHealthyWithoutAlert(t *testing.T) {
	rec := &recorder{}
	w := New(&scriptedProber{steps: []func() (domain.HealthVerdict, error){verdict(true)}}, time.Minute, rec)
	for range 3 {
		w.Step(context.Background())
	}
	if len(rec.kinds()) != 0 {
		t.Errorf("notified = %q, want nothing", rec.kinds())
	}
}

func TestWatchdog_ProbeFailureIsNoOp(t *testing.T) {
	prober := &scriptedProber{steps: []func() (domain.HealthVerdict, error){
		verdict(false),
		func() (domain.HealthVerdict, error) { return domain.HealthVerdict{}, errors.New("probe exploded") },
		func() (domain.HealthVerdict, error) { panic("nil map") },
		verdict(false),
	}}
	rec := &recorder{}
	w := New(prober, time.Minute, rec)

	for range 4 {
		w.Step(context.Background())
	}
	if kinds := rec.kinds(); !slices.Equal(kinds, []domain.TransitionKind{domain.TransitionDown}) {
		t.Errorf("notified = %q, want a single down alert", kinds)
	}
	s := w.Snapshot()
	if s.Failures != 2 {
		t.Errorf("Failures = %d, want 2", s.Failures)
	}
	if s.State.LastKnownHealthy || !s.State.AlertSent {
		t.Errorf("State = %+v, want unhealthy alerted", s.State)
	}
}

func TestWatchdog_NotifierPanicDoesNotStopFanOut(t *testing.T) {
	rec := &recorder{}
	boom := NotifierFunc(func(context.Context, domain.HealthTransition) { panic("send failed") })
	w := New(&scriptedProber{steps: []func() (domain.HealthVerdict, error){verdict(false)}}, time.Minute, boom, rec)

	if kind := w.Step(context.Background()); kind != domain.TransitionDown {
		t.Fatalf("Step() = %q, want down", kind)
	}
	if len(rec.kinds()) != 1 {
		t.Errorf("second notifier saw %d transitions, want 1", len(rec.kinds()))
	}
}

func TestAdvance_AlertImpliesUnhealthy(t *testing.T) {
	states := []domain.WatchdogState{
		{LastKnownHealthy: true},
		{LastKnownHealthy: false, AlertSent: true},
	}
	for _, s := range states {
		for _, healthy := range []bool{true, false} {
			next, _ := advance(s, healthy)
			if next.AlertSent && next.LastKnownHealthy {
				t.Errorf("advance(%+v, %v) = %+v, alert sent while healthy", s, healthy, next)
			}
		}
	}
}

func TestWatchdog_RunStopsOnCancel(t *testing.T) {
	prober := &scriptedProber{steps: []func() (domain.HealthVerdict, error){verdict(true)}}
	w := New(prober, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for w.Snapshot().Probes < 2 {
		select {
		case <-deadline:
			t.Fatal("watchdog did not probe")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
