package backend

import "CopilotChat/internal/session"

// History roles understood by the copilot backend
const (
	HistoryRoleUser  = "user"
	HistoryRoleModel = "model"
)

// StreamRequest represents the request body for the copilot stream endpoint
type StreamRequest struct {
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	History []HistoryEntry `json:"history,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// HistoryEntry represents one prior conversation turn
type HistoryEntry struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part represents a text fragment of a history entry
type Part struct {
	Text string `json:"text"`
}

// BuildHistory projects prior messages into history entries, skipping
// seed messages that only exist to offer quick replies.
func BuildHistory(messages []session.Message) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(messages))
	for _, msg := range messages {
		if session.IsSeed(msg) {
			continue
		}
		role := HistoryRoleModel
		if msg.Role == session.RoleUser {
			role = HistoryRoleUser
		}
		history = append(history, HistoryEntry{
			Role:  role,
			Parts: []Part{{Text: msg.Content}},
		})
	}
	return history
}
