package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/models"
)

type scriptedModel struct {
	text string
	err  error
}

func (m scriptedModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan dispatcher.Chunk, 1)
	ch <- &dispatcher.TextChunk{Content: m.text}
	close(ch)
	return ch, nil
}

func testSpec() *models.Spec {
	return &models.Spec{
		Goal: "build a login page",
		Agents: []models.AgentSpec{
			{Name: "builder-1", Role: models.RoleBuilder},
			{Name: "tester-1", Role: models.RoleTester},
		},
	}
}

func TestPlanParsesValidPlan(t *testing.T) {
	model := scriptedModel{text: `{"tasks":[
		{"id":"t1","name":"Build login form","agent_name":"builder-1","predecessors":[]},
		{"id":"t2","name":"Test login form","agent_name":"tester-1","predecessors":["t1"]}
	],"plan_explanation":"two step plan"}`}

	p := New(model, "planner-model")
	plan, err := p.Plan(context.Background(), testSpec(), PlannerContext{})
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, 2)
	assert.Equal(t, "two step plan", plan.PlanExplanation)
}

func TestPlanRejectsUndeclaredAgent(t *testing.T) {
	model := scriptedModel{text: `{"tasks":[{"id":"t1","name":"X","agent_name":"ghost"}]}`}
	p := New(model, "planner-model")
	_, err := p.Plan(context.Background(), testSpec(), PlannerContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrPlanInvalid)
}

func TestPlanRejectsCyclicGraph(t *testing.T) {
	model := scriptedModel{text: `{"tasks":[
		{"id":"t1","name":"A","agent_name":"builder-1","predecessors":["t2"]},
		{"id":"t2","name":"B","agent_name":"builder-1","predecessors":["t1"]}
	]}`}
	p := New(model, "planner-model")
	_, err := p.Plan(context.Background(), testSpec(), PlannerContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrPlanInvalid)
}

func TestPlanRejectsEmptyTaskList(t *testing.T) {
	model := scriptedModel{text: `{"tasks":[]}`}
	p := New(model, "planner-model")
	_, err := p.Plan(context.Background(), testSpec(), PlannerContext{})
	require.Error(t, err)
}

func TestPlanRejectsSpecWithNoAgents(t *testing.T) {
	model := scriptedModel{text: `{"tasks":[]}`}
	p := New(model, "planner-model")
	_, err := p.Plan(context.Background(), &models.Spec{Goal: "x"}, PlannerContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrPlanInvalid)
}

func TestPlanHandlesMarkdownFencedJSON(t *testing.T) {
	model := scriptedModel{text: "```json\n{\"tasks\":[{\"id\":\"t1\",\"name\":\"A\",\"agent_name\":\"builder-1\"}]}\n```"}
	p := New(model, "planner-model")
	plan, err := p.Plan(context.Background(), testSpec(), PlannerContext{})
	require.NoError(t, err)
	assert.Len(t, plan.Tasks, 1)
}
