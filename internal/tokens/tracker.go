// Package tokens implements the per-session token and cost tracker
// from spec.md §4.13: accumulates usage reported by the LLM dispatcher
// after every turn and derives an estimated dollar cost from the
// configured per-model rate table.
package tokens

import (
	"sync"

	"github.com/elisa-build/elisa/internal/models"
)

// Rates gives the per-million-token price for one model, in USD.
type Rates struct {
	InputPerMillion     float64
	CachedPerMillion    float64
	OutputPerMillion    float64
	ReasoningPerMillion float64
}

// Tracker accumulates token usage for one session, broken down by
// task. Each Record prices its tokens at the rates of the model it
// names, so a session that mixes models still totals the right cost.
type Tracker struct {
	mu     sync.Mutex
	rates  map[string]Rates
	byTask map[string]models.TokenUsage
	total  models.TokenUsage
}

// New creates a Tracker. rates maps model name to its price table;
// a model absent from rates accrues zero cost (logged by the caller).
func New(rates map[string]Rates) *Tracker {
	return &Tracker{
		rates:  rates,
		byTask: make(map[string]models.TokenUsage),
	}
}

// Record adds one turn's usage for a task/model to both the task's
// running total and the session total.
func (t *Tracker) Record(taskID, model string, input, output, cached, reasoning int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost := t.costLocked(model, input, output, cached, reasoning)

	cur := t.byTask[taskID]
	cur.InputTokens += input
	cur.OutputTokens += output
	cur.CachedTokens += cached
	cur.ReasoningTokens += reasoning
	cur.CostUsd += cost
	t.byTask[taskID] = cur

	t.total.InputTokens += input
	t.total.OutputTokens += output
	t.total.CachedTokens += cached
	t.total.ReasoningTokens += reasoning
	t.total.CostUsd += cost
}

func (t *Tracker) costLocked(model string, input, output, cached, reasoning int) float64 {
	r, ok := t.rates[model]
	if !ok {
		return 0
	}
	const million = 1_000_000.0
	return float64(input)*r.InputPerMillion/million +
		float64(output)*r.OutputPerMillion/million +
		float64(cached)*r.CachedPerMillion/million +
		float64(reasoning)*r.ReasoningPerMillion/million
}

// TaskUsage returns the accumulated usage for one task.
func (t *Tracker) TaskUsage(taskID string) models.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byTask[taskID]
}

// SessionUsage returns the accumulated usage across the whole session.
func (t *Tracker) SessionUsage() models.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
