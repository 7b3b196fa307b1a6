package agent

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ashureev/supervisor/internal/domain"
)

// streamRecord is the subset of a stream-json line the runner reads.
type streamRecord struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	Message   json.RawMessage `json:"message"`
	Result    *string         `json:"result"`
	SessionID string          `json:"session_id"`
	IsError   bool            `json:"is_error"`
}

// ParseLine classifies one line of stream-json output. ok is false for blank
// or malformed lines, which are expected at stream boundaries.
func ParseLine(line []byte) (domain.StreamEvent, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return domain.StreamEvent{}, false
	}

	var record streamRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return domain.StreamEvent{}, false
	}

	event := domain.StreamEvent{
		Kind:         domain.EventOther,
		SessionToken: domain.SessionToken(record.SessionID),
	}

	switch record.Type {
	case "assistant":
		if text, ok := messageText(record.Message); ok && text != "" {
			event.Kind = domain.EventProgress
			event.Text = text
			event.HasText = true
		}
	case "result":
		event.Kind = domain.EventResult
		if record.Result != nil {
			event.Text = *record.Result
			event.HasText = true
		}
	}
	return event, true
}

// messageText extracts reply text from an assistant record's message field,
// which is either a plain string or a message object with content blocks.
func messageText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}

	var plain string
	if json.Unmarshal(raw, &plain) == nil {
		return plain, true
	}

	var message struct {
		Content json.RawMessage `json:"content"`
	}
	if json.Unmarshal(raw, &message) != nil {
		return "", false
	}
	if json.Unmarshal(message.Content, &plain) == nil {
		return plain, true
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(message.Content, &blocks) != nil {
		return "", false
	}
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// streamState accumulates what one invocation has seen so far.
type streamState struct {
	partial   string
	result    string
	hasResult bool
	token     domain.SessionToken
	records   int
}

// apply folds an event into the state and returns the snapshot to publish,
// if any. Session tokens always overwrite earlier ones.
func (s *streamState) apply(event domain.StreamEvent) (string, bool) {
	s.records++
	if event.SessionToken != "" {
		s.token = event.SessionToken
	}
	switch event.Kind {
	case domain.EventProgress:
		s.partial = event.Text
		return s.partial, true
	case domain.EventResult:
		if event.HasText && event.Text != "" {
			s.result = event.Text
			s.hasResult = true
		}
	}
	return "", false
}

// finalText prefers the result record over the last progress snapshot.
func (s *streamState) finalText() string {
	if s.hasResult {
		return s.result
	}
	return s.partial
}
