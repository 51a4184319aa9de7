package devserver

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"CopilotChat/internal/backend"
	"CopilotChat/internal/config"
)

// GeminiResponder relays stream requests to the Gemini API
type GeminiResponder struct {
	client *genai.Client
}

// NewGeminiResponder creates a relay authenticated with apiKey
func NewGeminiResponder(ctx context.Context, apiKey string) (*GeminiResponder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiResponder{client: client}, nil
}

// Contents converts the request history and prompt into Gemini contents
func Contents(req backend.StreamRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, entry := range req.History {
		var role genai.Role = genai.RoleUser
		if entry.Role == backend.HistoryRoleModel {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, len(entry.Parts))
		for _, p := range entry.Parts {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
}

// Respond streams the model's answer
func (g *GeminiResponder) Respond(ctx context.Context, req backend.StreamRequest, emit func(text string) error) error {
	model := req.Model
	if model == "" {
		model = config.DefaultModel
	}

	var cfg *genai.GenerateContentConfig
	if req.System != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		}
	}

	for resp, err := range g.client.Models.GenerateContentStream(ctx, model, Contents(req), cfg) {
		if err != nil {
			return err
		}
		if text := resp.Text(); text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}
	return nil
}
