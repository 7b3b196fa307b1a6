package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/supervisor/internal/agent"
)

// Fixed user-facing texts.
const (
	placeholderText   = "..."
	notAuthorizedText = "Not authorized."
	noOutputText      = "[error] No response from Claude."
	internalErrorText = "[error] Internal error while running Claude."
	noReplyToReadText = "No previous response to read aloud."
	ttsUnavailableMsg = "[TTS unavailable: ffmpeg or Supertonic not set up]"
)

// errRunnerPanic marks a turn whose runner goroutine panicked.
var errRunnerPanic = errors.New("runner panicked")

// notice turns a classified runner failure into the text shown to the user.
func notice(err error) string {
	var timeoutErr *agent.TimeoutError
	var processErr *agent.ProcessError
	var startErr *agent.StartError
	switch {
	case errors.As(err, &timeoutErr):
		return fmt.Sprintf("[timeout] Claude took too long (>%ds). Try /new to reset.", int(timeoutErr.After.Seconds()))
	case errors.As(err, &processErr):
		text := fmt.Sprintf("[error] Claude exited with code %d.", processErr.Code)
		if processErr.Tail != "" {
			text += "\n" + processErr.Tail
		}
		return text
	case errors.Is(err, agent.ErrNoOutput):
		return noOutputText
	case errors.As(err, &startErr):
		return fmt.Sprintf("[error] Failed to start Claude: %v", startErr.Err)
	case errors.Is(err, context.Canceled):
		return "[error] Request cancelled."
	default:
		return internalErrorText
	}
}
