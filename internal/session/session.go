package session

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single chat message
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"` // Follow-up prompts, assistant only
}

// Session represents an archived chat transcript
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Endpoint  string    `json:"endpoint"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
}

// NewMessageID returns a time-ordered unique message ID
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}

// NewUserMessage creates a user message stamped with the current time
func NewUserMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message stamped with the current time
func NewAssistantMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// Clone returns a deep copy of messages
func Clone(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg
		if msg.Suggestions != nil {
			out[i].Suggestions = append([]string(nil), msg.Suggestions...)
		}
	}
	return out
}
