package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordAccumulatesPerTaskAndSession(t *testing.T) {
	tr := New(map[string]Rates{
		"gpt-5": {InputPerMillion: 2, OutputPerMillion: 8, CachedPerMillion: 0.5, ReasoningPerMillion: 8},
	})

	tr.Record("t1", "gpt-5", 1_000_000, 500_000, 0, 0)
	tr.Record("t1", "gpt-5", 100_000, 0, 200_000, 0)
	tr.Record("t2", "gpt-5", 500_000, 0, 0, 0)

	t1 := tr.TaskUsage("t1")
	assert.Equal(t, 1_100_000, t1.InputTokens)
	assert.Equal(t, 500_000, t1.OutputTokens)
	assert.Equal(t, 200_000, t1.CachedTokens)
	assert.InDelta(t, 2*1.0+8*0.5+100_000*2.0/1_000_000+200_000*0.5/1_000_000, t1.CostUsd, 0.001)

	total := tr.SessionUsage()
	assert.Equal(t, 1_600_000, total.InputTokens)
	assert.Equal(t, 500_000, total.OutputTokens)
	assert.Equal(t, 200_000, total.CachedTokens)
}

func TestRecordUnknownModelAccruesZeroCost(t *testing.T) {
	tr := New(map[string]Rates{})
	tr.Record("t1", "unknown-model", 1000, 1000, 0, 0)
	usage := tr.TaskUsage("t1")
	assert.Equal(t, 1000, usage.InputTokens)
	assert.Zero(t, usage.CostUsd)
}
