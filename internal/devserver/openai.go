package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"CopilotChat/internal/backend"
)

// DefaultOpenAIModel is used when no OpenAI model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIResponder relays stream requests to an OpenAI-compatible chat API.
// The request's model is ignored in favour of the configured one.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// NewOpenAIResponder creates a relay. An empty baseURL uses the OpenAI API.
func NewOpenAIResponder(apiKey, baseURL, model string) (*OpenAIResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIResponder{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// ChatMessages converts a stream request into chat completion messages
func ChatMessages(req backend.StreamRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, entry := range req.History {
		role := openai.ChatMessageRoleUser
		if entry.Role == backend.HistoryRoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		var content string
		for _, p := range entry.Parts {
			content += p.Text
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: content})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
}

// Respond streams the completion
func (o *OpenAIResponder) Respond(ctx context.Context, req backend.StreamRequest, emit func(text string) error) error {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: ChatMessages(req),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("failed to start completion: %w", err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(response.Choices) > 0 && response.Choices[0].Delta.Content != "" {
			if err := emit(response.Choices[0].Delta.Content); err != nil {
				return err
			}
		}
	}
}
