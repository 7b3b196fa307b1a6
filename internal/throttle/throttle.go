// Package throttle decides when a streamed partial reply is worth an edit.
package throttle

import (
	"time"
	"unicode/utf8"
)

const (
	DefaultInterval = 3 * time.Second
	DefaultMinDelta = 40
	DefaultMaxLen   = 4000
)

// Policy gates progressive message edits. The zero value is not useful; use
// DefaultPolicy or fill every field.
type Policy struct {
	// Interval is the minimum time between two emitted edits.
	Interval time.Duration
	// MinDelta is how many runes the text must have grown by, exclusive.
	MinDelta int
	// MaxLen is the transport's single-message limit in runes.
	MaxLen int
}

// DefaultPolicy returns the 3s / 40 runes / 4000 runes policy.
func DefaultPolicy() Policy {
	return Policy{
		Interval: DefaultInterval,
		MinDelta: DefaultMinDelta,
		MaxLen:   DefaultMaxLen,
	}
}

// ShouldEmit reports whether candidate should replace previous on the remote
// message. It has no side effects; callers record previous and previousEmit
// only when it returns true.
func (p Policy) ShouldEmit(previous, candidate string, previousEmit, now time.Time) bool {
	if now.Sub(previousEmit) < p.Interval {
		return false
	}
	candidateLen := utf8.RuneCountInString(candidate)
	if candidateLen-utf8.RuneCountInString(previous) <= p.MinDelta {
		return false
	}
	return candidateLen <= p.MaxLen
}

// Tracker holds the last emitted edit for one in-flight reply.
// It is not safe for concurrent use.
type Tracker struct {
	policy   Policy
	lastText string
	lastEmit time.Time
}

// NewTracker returns a tracker whose first edit is allowed immediately.
func NewTracker(policy Policy) *Tracker {
	return &Tracker{policy: policy}
}

// Offer returns true and records the candidate when the policy allows an edit.
func (t *Tracker) Offer(candidate string, now time.Time) bool {
	if !t.policy.ShouldEmit(t.lastText, candidate, t.lastEmit, now) {
		return false
	}
	t.lastText = candidate
	t.lastEmit = now
	return true
}

// LastText returns the most recently emitted text.
func (t *Tracker) LastText() string {
	return t.lastText
}
