// Package planner turns a Spec into a task/agent graph (spec.md §4.9):
// agents are lifted directly from spec.agents, tasks are produced by a
// single planning LLM call seeded with build-memory context, and the
// resulting graph is validated before the executor ever starts.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elisa-build/elisa/internal/dag"
	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/models"
)

// ErrPlanInvalid is the stable error marker for a malformed plan,
// per spec.md §4.9.
const ErrPlanInvalid = "PLAN_INVALID"

// Plan is the planner's output: the full task/agent graph.
type Plan struct {
	Tasks           []*models.Task
	Agents          []*models.Agent
	TaskMap         map[string]*models.Task
	AgentMap        map[string]*models.Agent
	Scheduler       *dag.Scheduler
	PlanExplanation string
}

// PlannerContext is the memory-derived seeding material injected into
// the planning prompt (spec.md §4.9, §4.13).
type PlannerContext struct {
	SimilarRuns []models.PlannerContextEntry
}

// Planner dispatches one planning LLM call per invocation.
type Planner struct {
	model        dispatcher.LanguageModel
	plannerModel string
}

// New creates a Planner. plannerModel names the model id to request
// for the planning call.
func New(model dispatcher.LanguageModel, plannerModel string) *Planner {
	return &Planner{model: model, plannerModel: plannerModel}
}

// rawTask and rawPlan are the JSON shapes the planning LLM must emit.
type rawTask struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	AgentName          string   `json:"agent_name"`
	Predecessors       []string `json:"predecessors"`
	AcceptanceCriteria []string `json:"acceptance_criteria"`
}

type rawPlan struct {
	Tasks           []rawTask `json:"tasks"`
	PlanExplanation string    `json:"plan_explanation"`
}

// Plan produces a validated task/agent graph from spec, seeded with
// plannerCtx. Returns an error prefixed with ErrPlanInvalid if the
// model's output is malformed, cyclic, or references an undeclared
// agent.
func (p *Planner) Plan(ctx context.Context, spec *models.Spec, plannerCtx PlannerContext) (*Plan, error) {
	agents := make([]*models.Agent, 0, len(spec.Agents))
	agentMap := make(map[string]*models.Agent, len(spec.Agents))
	for _, a := range spec.Agents {
		agent := &models.Agent{Name: a.Name, Role: a.Role, Persona: a.Persona, Status: models.AgentStatusIdle}
		agents = append(agents, agent)
		agentMap[a.Name] = agent
	}
	if len(agents) == 0 {
		return nil, fmt.Errorf("%s: spec declares no agents", ErrPlanInvalid)
	}

	systemPrompt, userPrompt := buildPlanningPrompt(spec, agents, plannerCtx)

	chunks, err := p.model.Generate(ctx, dispatcher.GenerateInput{
		Model: p.plannerModel,
		Messages: []dispatcher.Message{
			{Role: dispatcher.RoleSystem, Content: systemPrompt},
			{Role: dispatcher.RoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: planning call failed: %w", ErrPlanInvalid, err)
	}

	var raw strings.Builder
	for chunk := range chunks {
		switch c := chunk.(type) {
		case *dispatcher.TextChunk:
			raw.WriteString(c.Content)
		case *dispatcher.ErrorChunk:
			return nil, fmt.Errorf("%s: planning call errored: %s", ErrPlanInvalid, c.Message)
		}
	}

	plan, err := parseAndValidate(raw.String(), agentMap)
	if err != nil {
		return nil, err
	}
	plan.Agents = agents
	plan.AgentMap = agentMap
	return plan, nil
}

func parseAndValidate(jsonText string, agentMap map[string]*models.Agent) (*Plan, error) {
	var rp rawPlan
	jsonText = extractJSON(jsonText)
	if err := json.Unmarshal([]byte(jsonText), &rp); err != nil {
		return nil, fmt.Errorf("%s: could not parse plan JSON: %w", ErrPlanInvalid, err)
	}
	if len(rp.Tasks) == 0 {
		return nil, fmt.Errorf("%s: plan contains no tasks", ErrPlanInvalid)
	}

	tasks := make([]*models.Task, 0, len(rp.Tasks))
	taskMap := make(map[string]*models.Task, len(rp.Tasks))
	for _, rt := range rp.Tasks {
		if rt.ID == "" || rt.Name == "" {
			return nil, fmt.Errorf("%s: task missing id or name", ErrPlanInvalid)
		}
		if _, ok := agentMap[rt.AgentName]; !ok {
			return nil, fmt.Errorf("%s: task %q references undeclared agent %q", ErrPlanInvalid, rt.ID, rt.AgentName)
		}
		if _, dup := taskMap[rt.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate task id %q", ErrPlanInvalid, rt.ID)
		}
		t := &models.Task{
			ID:                 rt.ID,
			Name:               rt.Name,
			Description:        rt.Description,
			Status:             models.TaskStatusPending,
			AgentName:          rt.AgentName,
			Predecessors:       rt.Predecessors,
			AcceptanceCriteria: rt.AcceptanceCriteria,
		}
		tasks = append(tasks, t)
		taskMap[t.ID] = t
	}

	scheduler, err := dag.New(tasks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrPlanInvalid, err)
	}

	return &Plan{
		Tasks:           tasks,
		TaskMap:         taskMap,
		Scheduler:       scheduler,
		PlanExplanation: rp.PlanExplanation,
	}, nil
}

// extractJSON strips leading/trailing prose a model may wrap the JSON
// payload in (e.g. markdown code fences), returning the span from the
// first '{' to the last '}'. Braces are not balanced-matched; text with
// no such span is returned unchanged.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

func buildPlanningPrompt(spec *models.Spec, agents []*models.Agent, plannerCtx PlannerContext) (system, user string) {
	system = `You are the planning stage of a build pipeline. Given a project goal,
requirements, and declared agents, produce a dependency graph of tasks as
strict JSON: {"tasks": [{"id","name","description","agent_name",
"predecessors": [...], "acceptance_criteria": [...]}], "plan_explanation":
"..."}. Every agent_name must match one of the declared agents. The
dependency graph must be acyclic. Emit JSON only, no prose.`

	var sb strings.Builder
	sb.WriteString("## Goal\n\n")
	sb.WriteString(spec.Goal)
	sb.WriteString("\n\n## Requirements\n\n")
	for _, r := range spec.Requirements {
		sb.WriteString(fmt.Sprintf("- [%s] %s\n", r.Type, r.Description))
	}
	sb.WriteString("\n## Declared Agents\n\n")
	for _, a := range agents {
		sb.WriteString(fmt.Sprintf("- %s (%s): %s\n", a.Name, a.Role, a.Persona))
	}

	if len(plannerCtx.SimilarRuns) > 0 {
		sb.WriteString("\n## Similar Prior Runs\n\n")
		for _, entry := range plannerCtx.SimilarRuns {
			sb.WriteString(fmt.Sprintf(
				"- %s (similarity %.2f): completed %d/%d tasks, judge score %d, skills used: %s\n",
				entry.Record.Goal, entry.Similarity,
				entry.Record.Outcome.TasksCompleted, entry.Record.Outcome.TasksTotal,
				entry.Record.Outcome.JudgeScore, strings.Join(entry.Record.SkillsUsed, ", "),
			))
		}
	}

	user = sb.String()
	return system, user
}
