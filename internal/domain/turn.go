package domain

import "time"

// OutcomeKind classifies how a user turn ended.
type OutcomeKind string

const (
	OutcomeOK           OutcomeKind = "ok"
	OutcomeTimeout      OutcomeKind = "timeout"
	OutcomeProcessError OutcomeKind = "process_error"
	OutcomeNoOutput     OutcomeKind = "no_output"
	OutcomeFault        OutcomeKind = "fault"
)

// TurnRecord is the journal entry written after every assistant turn.
// Prompt and reply bodies are not stored, only their sizes.
type TurnRecord struct {
	ID             int64          `json:"id"`
	ConversationID ConversationID `json:"conversation_id"`
	PromptLength   int            `json:"prompt_length"`
	ReplyLength    int            `json:"reply_length"`
	Outcome        OutcomeKind    `json:"outcome"`
	Resumed        bool           `json:"resumed"`
	Duration       time.Duration  `json:"duration_ns"`
	StartedAt      time.Time      `json:"started_at"`
}
