package session

import "CopilotChat/internal/stream"

// Apply folds one stream event into messages. A delta is appended to the
// content of the message with ID inflightID; if no such message exists the
// event is dropped. Done and Error events leave messages untouched, the
// controller owns their handling. Apply reports whether messages changed.
func Apply(messages []Message, inflightID string, ev stream.Event) bool {
	if ev.Type != stream.EventDelta {
		return false
	}
	for i := range messages {
		if messages[i].ID == inflightID {
			messages[i].Content += ev.Text
			return true
		}
	}
	return false
}

// IsSeed reports whether msg is a UI seed message (an assistant greeting
// carrying quick-reply suggestions) that must not be sent as history.
func IsSeed(msg Message) bool {
	return msg.Role == RoleAssistant && len(msg.Suggestions) > 0
}
