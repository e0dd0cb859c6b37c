package testphase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/models"
)

type fakeRunner struct {
	agg   models.TestPhaseAggregate
	calls int
}

func (f *fakeRunner) RunTests(ctx context.Context, root string) (models.TestPhaseAggregate, error) {
	f.calls++
	return f.agg, nil
}

func TestRunSkipsWhenDisabledAndNoBehavioralTests(t *testing.T) {
	runner := &fakeRunner{}
	p := New(runner)
	agg, err := p.Run(context.Background(), "/ws", models.Workflow{TestingEnabled: false})
	require.NoError(t, err)
	assert.Equal(t, models.TestPhaseAggregate{}, agg)
	assert.Zero(t, runner.calls)
}

func TestRunExecutesWhenEnabled(t *testing.T) {
	runner := &fakeRunner{agg: models.TestPhaseAggregate{Passed: 2, Total: 2}}
	p := New(runner)
	agg, err := p.Run(context.Background(), "/ws", models.Workflow{TestingEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, 2, agg.Passed)
	assert.Equal(t, 1, runner.calls)
}

func TestRunExecutesForBehavioralTestsEvenWhenDisabled(t *testing.T) {
	runner := &fakeRunner{agg: models.TestPhaseAggregate{Total: 1}}
	p := New(runner)
	workflow := models.Workflow{TestingEnabled: false, BehavioralTests: []models.BehavioralTest{{When: "x", Then: "y"}}}
	_, err := p.Run(context.Background(), "/ws", workflow)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
}
