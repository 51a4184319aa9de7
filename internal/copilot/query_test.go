package copilot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopilotChat/internal/backend"
	"CopilotChat/internal/cache"
)

func TestQuerier_Ask(t *testing.T) {
	requests := make(chan backend.StreamRequest, 1)
	srv := streamServer(t, requests, "data: {\"text\":\"SELECT \"}\n", "data: {\"text\":\"1\"}\nevent: done\n")
	q := NewQuerier(Options{Endpoint: srv.URL, HTTPClient: srv.Client(), Model: "test-model"}, nil)

	answer, err := q.Ask(context.Background(), "write a query", "be brief")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", answer)

	req := <-requests
	assert.Equal(t, "write a query", req.Prompt)
	assert.Equal(t, "be brief", req.System)
	assert.Equal(t, "test-model", req.Model)
	assert.Empty(t, req.History)
}

func TestQuerier_AskEmptyPrompt(t *testing.T) {
	q := NewQuerier(Options{}, nil)
	_, err := q.Ask(context.Background(), " ", "")
	assert.Error(t, err)
}

func TestQuerier_AskStreamError(t *testing.T) {
	srv := streamServer(t, nil, "event: error\ndata: {\"message\":\"quota exceeded\"}\n")
	q := NewQuerier(Options{Endpoint: srv.URL, HTTPClient: srv.Client()}, nil)

	_, err := q.Ask(context.Background(), "q", "")
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, "quota exceeded", streamErr.Message)
}

func TestQuerier_CachesAnswers(t *testing.T) {
	requests := make(chan backend.StreamRequest, 2)
	srv := streamServer(t, requests, "data: {\"text\":\"cached\"}\nevent: done\n")
	q := NewQuerier(Options{Endpoint: srv.URL, HTTPClient: srv.Client()}, cache.New(time.Minute))

	first, err := q.Ask(context.Background(), "q", "s")
	require.NoError(t, err)
	second, err := q.Ask(context.Background(), "q", "s")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, requests, 1)

	_, err = q.Ask(context.Background(), "q", "other system")
	require.NoError(t, err)
	assert.Len(t, requests, 2)
}

func TestQuerier_TruncatedAnswerIsNotCached(t *testing.T) {
	requests := make(chan backend.StreamRequest, 2)
	srv := streamServer(t, requests, "data: {\"text\":\"partial\"}\n")
	q := NewQuerier(Options{Endpoint: srv.URL, HTTPClient: srv.Client()}, cache.New(time.Minute))

	answer, err := q.Ask(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.Equal(t, "partial", answer)

	_, err = q.Ask(context.Background(), "q", "s")
	require.NoError(t, err)
	assert.Len(t, requests, 2)
}

func TestQuerier_Optimize(t *testing.T) {
	requests := make(chan backend.StreamRequest, 1)
	srv := streamServer(t, requests, "data: {\"text\":\"Add an index\"}\nevent: done\n")
	q := NewQuerier(Options{Endpoint: srv.URL, HTTPClient: srv.Client()}, nil)

	answer, err := q.Optimize(context.Background(), "SELECT * FROM orders", "orders(id, created_at)")
	require.NoError(t, err)
	assert.Equal(t, "Add an index", answer)

	req := <-requests
	assert.Equal(t, OptimizePrompt("SELECT * FROM orders"), req.Prompt)
	assert.Contains(t, req.Prompt, "SELECT * FROM orders")
	assert.Contains(t, req.System, "Database schema context: orders(id, created_at)")
	assert.Contains(t, req.System, "Index recommendations")

	_, err = q.Optimize(context.Background(), "", "")
	assert.Error(t, err)
}

func TestOptimizerSystemPrompt_WithoutSchema(t *testing.T) {
	prompt := OptimizerSystemPrompt("")
	assert.NotContains(t, prompt, "schema context")
	assert.Contains(t, prompt, "actionable recommendations")
}
