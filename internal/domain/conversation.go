// Package domain contains core domain types for the supervisor bot.
package domain

import "strconv"

// ConversationID identifies a chat thread on the chat platform.
type ConversationID int64

// String returns the decimal form used in logs and storage keys.
func (c ConversationID) String() string {
	return strconv.FormatInt(int64(c), 10)
}

// SessionToken is the opaque continuation token issued by the assistant CLI.
type SessionToken string

// EventKind classifies one parsed line of the assistant's stream output.
type EventKind int

const (
	// EventOther is any record that carries no reply text.
	EventOther EventKind = iota
	// EventProgress is a partial reply snapshot that replaces the previous one.
	EventProgress
	// EventResult is the final record of an invocation.
	EventResult
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventResult:
		return "result"
	default:
		return "other"
	}
}

// StreamEvent is a single classified record from the assistant's output.
type StreamEvent struct {
	Kind EventKind
	// Text is the snapshot for progress events or the final reply for result events.
	Text string
	// HasText reports whether the record carried a text field at all.
	HasText bool
	// SessionToken is set when the record carried a session id.
	SessionToken SessionToken
}
