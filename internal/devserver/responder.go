package devserver

import (
	"context"
	"strings"
	"time"

	"CopilotChat/internal/backend"
)

// Responder produces the answer to one stream request, handing text
// fragments to emit in order. An emit error aborts the answer.
type Responder interface {
	Respond(ctx context.Context, req backend.StreamRequest, emit func(text string) error) error
}

const (
	slowAnswer = `Slow queries usually come down to a few causes:

1. **Missing indexes**: sequential scans on large tables. Index the columns you filter and sort on.
2. **Inefficient JOINs**: unindexed foreign keys or joining before filtering. Index FK columns and filter early.
3. **Large result sets**: returning more rows than the page needs. Paginate or add a LIMIT.

Paste a slow query and I will go through it.`

	indexAnswer = `A good starting point for indexes:

` + "```sql" + `
CREATE INDEX idx_users_created_at ON users (created_at);
CREATE INDEX idx_posts_user_status ON posts (user_id, status);
` + "```" + `

Put the most selective column first in composite indexes, and watch write overhead before adding more.`

	joinAnswer = `To speed up a JOIN:

1. Index every foreign key column used in the join condition.
2. Filter rows before joining so the working set stays small.
3. Prefer EXISTS over IN for correlated subqueries.

Check the execution plan for nested loops over large sequential scans.`

	defaultAnswer = `I can help with slow queries, execution plans, index recommendations and schema design.

What database performance problem are you looking at?`
)

// CannedResponder answers from a fixed set of keyword-matched replies,
// streaming them word by word.
type CannedResponder struct {
	Delay time.Duration // Pause between words
}

// Answer returns the canned reply for prompt
func Answer(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "slow") || strings.Contains(lower, "performance"):
		return slowAnswer
	case strings.Contains(lower, "index"):
		return indexAnswer
	case strings.Contains(lower, "join"):
		return joinAnswer
	default:
		return defaultAnswer
	}
}

// Respond streams the canned answer for req.Prompt
func (r CannedResponder) Respond(ctx context.Context, req backend.StreamRequest, emit func(text string) error) error {
	for _, word := range strings.SplitAfter(Answer(req.Prompt), " ") {
		if r.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Delay):
			}
		}
		if err := emit(word); err != nil {
			return err
		}
	}
	return nil
}
