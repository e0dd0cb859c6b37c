package controller

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/contextmgr"
	"github.com/elisa-build/elisa/internal/deploy"
	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/events"
	"github.com/elisa-build/elisa/internal/executor"
	"github.com/elisa-build/elisa/internal/judge"
	"github.com/elisa-build/elisa/internal/memory"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/planner"
	"github.com/elisa-build/elisa/internal/prompt"
	"github.com/elisa-build/elisa/internal/sandbox"
	"github.com/elisa-build/elisa/internal/testphase"
	"github.com/elisa-build/elisa/internal/tokens"
	"github.com/elisa-build/elisa/internal/versionstore"
	"github.com/elisa-build/elisa/internal/workspace"
)

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) has(t events.Type) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

type fakeVStore struct{}

func (fakeVStore) InitRepo(ctx context.Context, path, goal string) error { return nil }

func (fakeVStore) Commit(ctx context.Context, path, message, agentName, taskID string) (versionstore.CommitRecord, bool, error) {
	return versionstore.CommitRecord{Hash: "deadbeef", ShortHash: "deadbe", Message: message, AgentName: agentName, TaskID: taskID}, true, nil
}

func (fakeVStore) DiffSummary(ctx context.Context, path, sha string) ([]string, error) {
	return nil, nil
}

func (fakeVStore) Status(ctx context.Context, path string) (bool, error) { return false, nil }

type noopTools struct{}

func (noopTools) Execute(ctx context.Context, call sandbox.Call) sandbox.Result {
	return sandbox.Result{CallID: call.ID}
}

type stubSnapshotter struct{}

func (stubSnapshotter) Snapshot(root string) (prompt.WorkspaceSnapshot, error) {
	return prompt.WorkspaceSnapshot{}, nil
}

// planModel always returns a one-task plan naming the "builder" agent.
type planModel struct{}

func (planModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	ch := make(chan dispatcher.Chunk, 1)
	ch <- &dispatcher.TextChunk{Content: `{"tasks":[{"id":"t1","name":"Build thing","description":"build it","agent_name":"builder","predecessors":[],"acceptance_criteria":["works"]}],"plan_explanation":"one task"}`}
	close(ch)
	return ch, nil
}

// coderModel always succeeds on the first turn.
type coderModel struct{}

func (coderModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	ch := make(chan dispatcher.Chunk, 2)
	ch <- &dispatcher.TextChunk{Content: "implemented the thing"}
	ch <- &dispatcher.UsageChunk{InputTokens: 10, OutputTokens: 5}
	close(ch)
	return ch, nil
}

// failingCoderModel never succeeds and carries no recognizable marker.
type failingCoderModel struct{}

func (failingCoderModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	ch := make(chan dispatcher.Chunk, 1)
	ch <- &dispatcher.ErrorChunk{Message: "transient failure, no marker"}
	close(ch)
	return ch, nil
}

func testSpec() *models.Spec {
	return &models.Spec{
		Goal:         "build a thing",
		Requirements: []models.Requirement{{Type: "functional", Description: "build a thing"}},
		Agents:       []models.AgentSpec{{Name: "builder", Role: models.RoleBuilder, Persona: "a careful builder"}},
		Deployment:   models.Deployment{Target: models.DeploymentPreview},
		Workflow:     models.Workflow{TestingEnabled: false},
	}
}

func judgeAdapter() Judge {
	return JudgeFunc(func(in JudgeInput) models.JudgeResult {
		return judge.Score(judge.Input{
			Spec: in.Spec, Tasks: in.Tasks, Commits: in.Commits, Tests: in.Tests,
			WorkspaceRoot: in.WorkspaceRoot, Threshold: in.Threshold,
		})
	})
}

func newController(t *testing.T, coderModel dispatcher.LanguageModel, judgeThreshold int) (*Controller, *recordingBus) {
	t.Helper()
	root := t.TempDir()
	bus := &recordingBus{}

	wsManager := workspace.NewManager(nil)
	require.NoError(t, wsManager.Provision(root))
	layout := workspace.NewLayout(root)

	sess := models.NewSession("sess-1", nil, root, models.RestartModeClean, false)

	ctxMgr := contextmgr.New(layout.CommsDir(), filepath.Join(layout.ContextDir(), "nugget_context.md"), 0)
	disp := dispatcher.New(coderModel, noopTools{})
	tr := tokens.New(map[string]tokens.Rates{})

	exec := executor.New(executor.Options{
		Bus: bus, WSManager: wsManager, WSSnapshot: stubSnapshotter{},
		VStore: fakeVStore{}, Dispatcher: disp, ContextMgr: ctxMgr,
		PromptB: prompt.New(), Tokens: tr,
		Ladder:      executor.RetryLadder{MaxTurnsDefault: 5, RetryLimit: 0, CompletionTokensStart: 1000, CompletionTokensStep: 1000, CompletionTokensCap: 4000},
		Concurrency: 2,
	})

	p := planner.New(planModel{}, "planner-model")
	tp := testphase.New(testphase.StubRunner{})
	dm := deploy.NewManager()

	memPath := filepath.Join(t.TempDir(), "memory.json")
	mem, err := memory.New(memPath, 0)
	require.NoError(t, err)

	return New(Options{
		Session: sess, Bus: bus, WSManager: wsManager, VStore: fakeVStore{},
		Planner: p, Executor: exec, TestPhase: tp, DeployManager: dm,
		Memory: mem, Judge: judgeAdapter(), JudgeThreshold: judgeThreshold,
	}), bus
}

func TestRunCompletesSuccessfully(t *testing.T) {
	c, bus := newController(t, coderModel{}, 0)

	err := c.Run(context.Background(), testSpec())
	require.NoError(t, err)

	assert.Equal(t, models.SessionStateDone, c.session.GetState())
	assert.Len(t, c.GetCommits(), 1)
	assert.True(t, bus.has(events.TypeSessionComplete))
	assert.True(t, bus.has(events.TypePlanReady))
	assert.True(t, bus.has(events.TypeJudgeResult))
	assert.False(t, bus.has(events.TypeError))
}

func TestRunAbortsWhenTaskGateRejected(t *testing.T) {
	c, bus := newController(t, failingCoderModel{}, 0)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), testSpec()) }()

	require.Eventually(t, func() bool {
		return c.AnswerGate(false, "stop the build") == nil
	}, 2*time.Second, 2*time.Millisecond)

	err := <-done
	require.Error(t, err)
	assert.Equal(t, models.SessionStateError, c.session.GetState())
	assert.True(t, bus.has(events.TypeError))
	assert.False(t, bus.has(events.TypeSessionComplete))
}

func TestRunTerminatesWhenJudgeOverrideRejected(t *testing.T) {
	// Threshold > 100 guarantees the judge's raw verdict fails.
	c, bus := newController(t, coderModel{}, 101)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), testSpec()) }()

	require.Eventually(t, func() bool {
		return c.AnswerGate(false, "do not override") == nil
	}, 2*time.Second, 2*time.Millisecond)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Judge")
	assert.Equal(t, models.SessionStateError, c.session.GetState())
	assert.False(t, bus.has(events.TypeSessionComplete))
}
