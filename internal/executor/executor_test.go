package executor

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/contextmgr"
	"github.com/elisa-build/elisa/internal/dag"
	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/events"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/prompt"
	"github.com/elisa-build/elisa/internal/sandbox"
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

func (b *recordingBus) typeCounts() map[events.Type]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := map[events.Type]int{}
	for _, e := range b.events {
		out[e.Type]++
	}
	return out
}

type stubSnapshotter struct{}

func (stubSnapshotter) Snapshot(root string) (prompt.WorkspaceSnapshot, error) {
	return prompt.WorkspaceSnapshot{}, nil
}

type fakeVStore struct {
	commits int
}

func (f *fakeVStore) InitRepo(ctx context.Context, path, goal string) error { return nil }

func (f *fakeVStore) Commit(ctx context.Context, path, message, agentName, taskID string) (versionstore.CommitRecord, bool, error) {
	f.commits++
	return versionstore.CommitRecord{Hash: "deadbeef", ShortHash: "deadbe", Message: message, AgentName: agentName, TaskID: taskID}, true, nil
}

func (f *fakeVStore) DiffSummary(ctx context.Context, path, sha string) ([]string, error) {
	return nil, nil
}

func (f *fakeVStore) Status(ctx context.Context, path string) (bool, error) { return false, nil }

// scriptedModel always succeeds on the first turn with the given text.
type scriptedModel struct {
	text string
}

func (m *scriptedModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	ch := make(chan dispatcher.Chunk, 2)
	ch <- &dispatcher.TextChunk{Content: m.text}
	ch <- &dispatcher.UsageChunk{InputTokens: 10, OutputTokens: 5}
	close(ch)
	return ch, nil
}

// failingModel always returns an error marker, forcing retry exhaustion.
type failingModel struct{}

func (failingModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	ch := make(chan dispatcher.Chunk, 1)
	ch <- &dispatcher.ErrorChunk{Message: "transient failure, no marker"}
	close(ch)
	return ch, nil
}

type noopTools struct{}

func (noopTools) Execute(ctx context.Context, call sandbox.Call) sandbox.Result {
	return sandbox.Result{CallID: call.ID}
}

func newExecutor(t *testing.T, model dispatcher.LanguageModel, bus Bus, ladder RetryLadder) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	wsManager := workspace.NewManager(nil)
	require.NoError(t, wsManager.Provision(root))
	layout := workspace.NewLayout(root)

	ctxMgr := contextmgr.New(layout.CommsDir(), filepath.Join(layout.ContextDir(), "nugget_context.md"), 0)
	disp := dispatcher.New(model, noopTools{})
	tr := tokens.New(map[string]tokens.Rates{})

	e := New(Options{
		Bus: bus, WSManager: wsManager, WSSnapshot: stubSnapshotter{},
		VStore: &fakeVStore{}, Dispatcher: disp, ContextMgr: ctxMgr,
		PromptB: prompt.New(), Tokens: tr, Ladder: ladder, Concurrency: 2,
	})
	return e, root
}

func testSpec() *models.Spec {
	return &models.Spec{
		Goal:       "build a thing",
		Deployment: models.Deployment{Target: models.DeploymentPreview},
		Workflow:   models.Workflow{TestingEnabled: true},
	}
}

func TestRunCompletesAllTasksOnSuccess(t *testing.T) {
	bus := &recordingBus{}
	ladder := RetryLadder{MaxTurnsDefault: 5, RetryLimit: 2, CompletionTokensStart: 1000, CompletionTokensStep: 1000, CompletionTokensCap: 4000}
	e, root := newExecutor(t, &scriptedModel{text: "done"}, bus, ladder)

	a := &models.Task{ID: "a", Name: "A", AgentName: "builder"}
	b := &models.Task{ID: "b", Name: "B", AgentName: "builder", Predecessors: []string{"a"}}
	sched, err := dag.New([]*models.Task{a, b})
	require.NoError(t, err)

	taskMap := map[string]*models.Task{"a": a, "b": b}
	agentMap := map[string]*models.Agent{"builder": {Name: "builder", Role: models.RoleBuilder}}

	result, err := e.Run(context.Background(), root, sched, taskMap, agentMap, testSpec(),
		func(ctx context.Context, taskID string, retryCount int) (bool, string) { return true, "" },
		func(ctx context.Context, taskID string, q map[string]any) map[string]any { return nil },
	)
	require.NoError(t, err)
	assert.False(t, result.Aborted)
	assert.Len(t, result.Commits, 2)
	assert.True(t, sched.AllTerminal())
	assert.Equal(t, models.TaskStatusDone, sched.Task("a").Status)
	assert.Equal(t, models.TaskStatusDone, sched.Task("b").Status)

	counts := bus.typeCounts()
	assert.Equal(t, 2, counts[events.TypeTaskStarted])
	assert.Equal(t, 2, counts[events.TypeTaskCompleted])
	assert.Equal(t, 2, counts[events.TypeCommitCreated])
}

func TestRunAbortsOnGateReject(t *testing.T) {
	bus := &recordingBus{}
	ladder := RetryLadder{MaxTurnsDefault: 5, RetryLimit: 0, CompletionTokensStart: 1000, CompletionTokensStep: 1000, CompletionTokensCap: 4000}
	e, root := newExecutor(t, failingModel{}, bus, ladder)

	a := &models.Task{ID: "a", Name: "A", AgentName: "builder"}
	b := &models.Task{ID: "b", Name: "B", AgentName: "builder", Predecessors: []string{"a"}}
	sched, err := dag.New([]*models.Task{a, b})
	require.NoError(t, err)

	taskMap := map[string]*models.Task{"a": a, "b": b}
	agentMap := map[string]*models.Agent{"builder": {Name: "builder", Role: models.RoleBuilder}}

	result, err := e.Run(context.Background(), root, sched, taskMap, agentMap, testSpec(),
		func(ctx context.Context, taskID string, retryCount int) (bool, string) { return false, "abort" },
		func(ctx context.Context, taskID string, q map[string]any) map[string]any { return nil },
	)
	require.Error(t, err)
	assert.True(t, result.Aborted)
}

func TestRunApprovedGateCascadesTransitively(t *testing.T) {
	bus := &recordingBus{}
	ladder := RetryLadder{MaxTurnsDefault: 5, RetryLimit: 0, CompletionTokensStart: 1000, CompletionTokensStep: 1000, CompletionTokensCap: 4000}
	e, root := newExecutor(t, failingModel{}, bus, ladder)

	a := &models.Task{ID: "a", Name: "A", AgentName: "builder"}
	b := &models.Task{ID: "b", Name: "B", AgentName: "builder", Predecessors: []string{"a"}}
	c := &models.Task{ID: "c", Name: "C", AgentName: "builder", Predecessors: []string{"b"}}
	sched, err := dag.New([]*models.Task{a, b, c})
	require.NoError(t, err)

	taskMap := map[string]*models.Task{"a": a, "b": b, "c": c}
	agentMap := map[string]*models.Agent{"builder": {Name: "builder", Role: models.RoleBuilder}}

	result, err := e.Run(context.Background(), root, sched, taskMap, agentMap, testSpec(),
		func(ctx context.Context, taskID string, retryCount int) (bool, string) { return true, "" },
		func(ctx context.Context, taskID string, q map[string]any) map[string]any { return nil },
	)
	require.NoError(t, err)
	assert.False(t, result.Aborted)
	assert.True(t, sched.AllTerminal())
	assert.Equal(t, models.FailureReasonRetriesExhausted, sched.Task("a").FailureReason)
	assert.Equal(t, models.FailureReasonPredecessorFailed, sched.Task("b").FailureReason)
	assert.Equal(t, models.FailureReasonPredecessorFailed, sched.Task("c").FailureReason)
}
