package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopilotChat/internal/stream"
)

func TestApply_AppendsDeltasInOrder(t *testing.T) {
	user := NewUserMessage("hi")
	assistant := NewAssistantMessage("")
	messages := []Message{user, assistant}

	for _, text := range []string{"Hel", "lo", ", ", "world"} {
		assert.True(t, Apply(messages, assistant.ID, stream.Delta(text)))
	}

	assert.Equal(t, "Hello, world", messages[1].Content)
	assert.Equal(t, "hi", messages[0].Content)
}

func TestApply_UnknownIDIsNoop(t *testing.T) {
	messages := []Message{NewAssistantMessage("x")}
	assert.False(t, Apply(messages, "missing", stream.Delta("y")))
	assert.Equal(t, "x", messages[0].Content)
}

func TestApply_NonDeltaEventsDoNotMutate(t *testing.T) {
	msg := NewAssistantMessage("keep")
	messages := []Message{msg}

	assert.False(t, Apply(messages, msg.ID, stream.Done()))
	assert.False(t, Apply(messages, msg.ID, stream.Failure("boom")))
	assert.Equal(t, "keep", messages[0].Content)
}

func TestNewMessageID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMessageID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewMessageID_TimeOrdered(t *testing.T) {
	first := NewMessageID()
	second := NewMessageID()
	assert.Less(t, first, second)
}

func TestWelcome_IsSeed(t *testing.T) {
	w := Welcome()
	assert.True(t, IsSeed(w))
	assert.False(t, IsSeed(NewAssistantMessage("answer")))
	assert.False(t, IsSeed(NewUserMessage("question")))

	w.Suggestions[0] = "mutated"
	assert.Equal(t, "How do I speed up my dashboard queries?", Welcome().Suggestions[0])
}

func TestClone_IsDeep(t *testing.T) {
	orig := []Message{Welcome()}
	cp := Clone(orig)
	cp[0].Content = "changed"
	cp[0].Suggestions[0] = "changed"

	assert.NotEqual(t, "changed", orig[0].Content)
	assert.NotEqual(t, "changed", orig[0].Suggestions[0])
	assert.Nil(t, Clone(nil))
}
