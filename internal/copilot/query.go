package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"CopilotChat/internal/backend"
	"CopilotChat/internal/cache"
)

const optimizerPrompt = `You are a database performance expert. Analyze the provided SQL query and suggest optimizations. Consider:
1. Index recommendations
2. Query structure improvements
3. Performance bottlenecks
4. Best practices
%s
Provide specific, actionable recommendations with explanations.`

// Querier runs one-shot prompts over the stream endpoint and returns the
// whole answer. It keeps no transcript and sends no history.
type Querier struct {
	transport *transport
	model     string
	cache     *cache.Cache
	logger    *slog.Logger
}

// NewQuerier creates a Querier. A nil cache disables answer caching.
func NewQuerier(opts Options, answers *cache.Cache) *Querier {
	opts = opts.withDefaults()
	return &Querier{
		transport: &transport{
			endpoint:       opts.Endpoint,
			client:         opts.HTTPClient,
			tokens:         opts.Tokens,
			requestTimeout: opts.RequestTimeout,
			idleTimeout:    opts.IdleTimeout,
		},
		model:  opts.Model,
		cache:  answers,
		logger: opts.Logger,
	}
}

// Ask sends prompt with an optional system instruction and collects the
// streamed answer until the done event or end of stream.
func (q *Querier) Ask(ctx context.Context, prompt, system string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt is empty")
	}

	key := cache.GenerateCacheKey(q.model, system, prompt)
	if answer, ok := q.cache.Get(key); ok {
		q.logger.Info("cache hit", "key", key[:16])
		return answer, nil
	}

	ex, err := q.transport.open(ctx, backend.StreamRequest{
		Prompt: prompt,
		System: system,
		Model:  q.model,
	})
	if err != nil {
		return "", err
	}
	defer ex.Close()

	var answer strings.Builder
	done, err := ex.consume(func(text string) { answer.WriteString(text) })
	if err != nil {
		return "", err
	}

	// A stream cut short before the done event is returned but not cached
	if done {
		q.cache.Put(key, answer.String())
	} else {
		q.logger.Warn("stream ended without done event, answer not cached", "chars", answer.Len())
	}
	return answer.String(), nil
}

// Optimize asks for optimization advice on an SQL query, optionally with
// schema context.
func (q *Querier) Optimize(ctx context.Context, query, schema string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is empty")
	}
	return q.Ask(ctx, OptimizePrompt(query), OptimizerSystemPrompt(schema))
}

// OptimizePrompt wraps query in the optimization request
func OptimizePrompt(query string) string {
	return "Please analyze and optimize this SQL query:\n\n" + query
}

// OptimizerSystemPrompt returns the optimizer instruction with optional schema context
func OptimizerSystemPrompt(schema string) string {
	schemaContext := ""
	if strings.TrimSpace(schema) != "" {
		schemaContext = "\nDatabase schema context: " + schema + "\n"
	}
	return fmt.Sprintf(optimizerPrompt, schemaContext)
}
