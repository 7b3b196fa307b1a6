package bot

import "github.com/ashureev/supervisor/internal/telegram"

// Callback data sent by the inline buttons.
const (
	ActionStatus   = "action:status"
	ActionLogs     = "action:logs"
	ActionRestart  = "action:restart"
	ActionNew      = "action:new"
	ActionVoice    = "action:voice"
	ActionDiagnose = "action:diagnose"
)

// ActionKeyboard is attached to replies and command results.
func ActionKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			{Text: "Status", CallbackData: ActionStatus},
			{Text: "Logs", CallbackData: ActionLogs},
			{Text: "Restart GW", CallbackData: ActionRestart},
		},
		{
			{Text: "New Session", CallbackData: ActionNew},
			{Text: "Voice", CallbackData: ActionVoice},
		},
	}}
}

// AlertKeyboard is attached to the "went down" alert.
func AlertKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			{Text: "Restart", CallbackData: ActionRestart},
			{Text: "Logs", CallbackData: ActionLogs},
			{Text: "Diagnose", CallbackData: ActionDiagnose},
		},
	}}
}
