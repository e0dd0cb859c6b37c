// Package executor owns the scheduler-plus-dispatcher main loop
// (spec.md §4.10): one worker goroutine per ready DAG batch entry,
// joined the way the teacher's executeStage launches one goroutine per
// agent and sync.WaitGroups them (pkg/queue/executor.go), generalized
// from "all agents in one stage" to "all ready tasks in one DAG batch".
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/elisa-build/elisa/internal/contextmgr"
	"github.com/elisa-build/elisa/internal/dag"
	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/events"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/prompt"
	"github.com/elisa-build/elisa/internal/tokens"
	"github.com/elisa-build/elisa/internal/versionstore"
	"github.com/elisa-build/elisa/internal/workspace"
)

// Bus is the minimal publish surface the executor needs.
type Bus interface {
	Publish(events.Event)
}

// RetryLadder holds the executor's turn-budget and completion-token
// escalation constants, per spec.md §4.10.
type RetryLadder struct {
	MaxTurnsDefault        int
	MaxTurnsRetryIncrement int
	RetryLimit             int
	CompletionTokensStart  int
	CompletionTokensStep   int
	CompletionTokensCap    int
}

// WorkspaceSnapshotter lets the executor build a fresh prompt snapshot
// before each dispatch without the executor knowing how files are read.
type WorkspaceSnapshotter interface {
	Snapshot(root string) (prompt.WorkspaceSnapshot, error)
}

// TeachingEngine is the external "teaching moment" capability queried
// after each successful task (spec.md §4.10 step e). Optional — a nil
// TeachingEngine simply skips the query and the teaching_moment event.
type TeachingEngine interface {
	TeachingMoment(ctx context.Context, task *models.Task, summary string) (note string, ok bool)
}

// Executor drives the plan through to completion.
type Executor struct {
	bus                Bus
	wsManager          *workspace.Manager
	wsSnapshot         WorkspaceSnapshotter
	vstore             versionstore.VersionStore
	dispatcher         *dispatcher.Dispatcher
	contextMgr         *contextmgr.Manager
	promptB            *prompt.Builder
	tokens             *tokens.Tracker
	ladder             RetryLadder
	model              string
	fallbackModel      string
	teaching           TeachingEngine
	concurrency        int
	dispatchTimeoutSec int
}

// Options configures a new Executor.
type Options struct {
	Bus                Bus
	WSManager          *workspace.Manager
	WSSnapshot         WorkspaceSnapshotter
	VStore             versionstore.VersionStore
	Dispatcher         *dispatcher.Dispatcher
	ContextMgr         *contextmgr.Manager
	PromptB            *prompt.Builder
	Tokens             *tokens.Tracker
	Ladder             RetryLadder
	Model              string // primary coder model
	FallbackModel      string // switched to on OUTPUT_LIMIT_REACHED, per spec.md §9
	Teaching           TeachingEngine
	Concurrency        int // default 3, per spec.md §5
	DispatchTimeoutSec int // wall-clock bound per dispatch, per spec.md §5; 0 disables
}

// New creates an Executor.
func New(o Options) *Executor {
	c := o.Concurrency
	if c <= 0 {
		c = 3
	}
	return &Executor{
		bus: o.Bus, wsManager: o.WSManager, wsSnapshot: o.WSSnapshot, vstore: o.VStore,
		dispatcher: o.Dispatcher, contextMgr: o.ContextMgr, promptB: o.PromptB, tokens: o.Tokens,
		ladder: o.Ladder, model: o.Model, fallbackModel: o.FallbackModel, teaching: o.Teaching, concurrency: c,
		dispatchTimeoutSec: o.DispatchTimeoutSec,
	}
}

// Result is the executor phase's overall outcome.
type Result struct {
	Commits []models.CommitRecord
	Aborted bool // true if a judge-independent human-gate rejection terminated the run
}

// GateFunc blocks until answerGate resolves a pending gate, returning
// the approval decision.
type GateFunc func(ctx context.Context, taskID string, retryCount int) (approved bool, feedback string)

// QuestionFunc blocks until answerQuestion resolves a pending question.
type QuestionFunc func(ctx context.Context, taskID string, question map[string]any) (answers map[string]any)

// Run drives the scheduler until every task is terminal, or the
// context is cancelled, or a human-gate rejection terminates the run.
func (e *Executor) Run(
	ctx context.Context,
	root string,
	plan *dag.Scheduler,
	taskMap map[string]*models.Task,
	agentMap map[string]*models.Agent,
	spec *models.Spec,
	onGate GateFunc,
	onQuestion QuestionFunc,
) (Result, error) {
	result := Result{}
	var mu sync.Mutex // protects result.Commits

	for !plan.AllTerminal() {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		batch := plan.ReadyBatch(e.concurrency)
		if len(batch) == 0 {
			// Nothing ready but not all terminal. Every earlier batch
			// was joined by wg.Wait before this iteration, so no work is
			// in flight and no pending task can become ready: stop the
			// loop and return the result so far instead of spinning.
			break
		}

		var wg sync.WaitGroup
		for _, task := range batch {
			if !plan.Claim(task.ID) {
				continue
			}
			wg.Add(1)
			go func(t *models.Task) {
				defer wg.Done()
				aborted := e.runTask(ctx, root, plan, t, taskMap, agentMap, spec, onGate, onQuestion, &mu, &result)
				if aborted {
					mu.Lock()
					result.Aborted = true
					mu.Unlock()
				}
			}(task)
		}
		wg.Wait()

		if result.Aborted {
			return result, fmt.Errorf("Build stopped")
		}
	}

	return result, nil
}

func (e *Executor) runTask(
	ctx context.Context,
	root string,
	sched *dag.Scheduler,
	task *models.Task,
	taskMap map[string]*models.Task,
	agentMap map[string]*models.Agent,
	spec *models.Spec,
	onGate GateFunc,
	onQuestion QuestionFunc,
	mu *sync.Mutex,
	result *Result,
) (aborted bool) {
	agent, ok := agentMap[task.AgentName]
	if !ok {
		sched.Fail(task.ID, models.FailureReasonRetriesExhausted)
		return false
	}

	e.bus.Publish(events.Event{Type: events.TypeTaskStarted, Payload: events.PayloadTask{TaskID: task.ID, TaskName: task.Name, AgentName: agent.Name}})

	compactContext := false
	maxCompletionTokens := e.ladder.CompletionTokensStart
	model := e.model

	for attempt := 0; ; attempt++ {
		if err := e.wsManager.StaleMetadataCleanup(root); err != nil {
			slog.Warn("stale metadata cleanup failed", "task_id", task.ID, "error", err)
		}

		snapshot, err := e.wsSnapshot.Snapshot(root)
		if err != nil {
			slog.Warn("workspace snapshot failed", "task_id", task.ID, "error", err)
		}
		if compactContext {
			snapshot.SrcFiles = nil
			snapshot.TestFiles = nil
			snapshot.Digest = nil
			snapshot.HasAnySrc = false
		}

		predContext := e.contextMgr.GetContextFor(task.Predecessors)
		maxTurns := e.ladder.MaxTurnsDefault + attempt*e.ladder.MaxTurnsRetryIncrement

		in := prompt.DispatchInputs{
			Task: task, Agent: agent, Workflow: spec.Workflow, Workspace: snapshot,
			PredecessorContext: predContext, Attempt: attempt, MaxTurns: maxTurns,
		}
		systemPrompt, userPrompt := e.promptB.BuildPrompts(in)

		agentResult := e.dispatcher.Dispatch(ctx, task.ID, systemPrompt, userPrompt, e.dispatcherOptions(model, maxTurns, maxCompletionTokens), func(text string) {
			e.bus.Publish(events.Event{Type: events.TypeAgentOutput, Payload: events.PayloadAgentOutput{TaskID: task.ID, Delta: text}})
		})

		e.tokens.Record(task.ID, model, agentResult.InputTokens, agentResult.OutputTokens, agentResult.CachedInputTokens, agentResult.ReasoningTokens)

		if agentResult.Success {
			e.onTaskSuccess(ctx, root, task, agent, agentResult.Summary, mu, result)
			sched.Complete(task.ID)
			return false
		}

		if attempt < e.ladder.RetryLimit {
			maxCompletionTokens = minInt(maxCompletionTokens+e.ladder.CompletionTokensStep, e.ladder.CompletionTokensCap)
			switch classifyMarker(agentResult.Summary) {
			case markerOutputLimit:
				if e.fallbackModel != "" {
					model = e.fallbackModel
				}
			case markerContextWindow:
				compactContext = true
			}
			continue
		}

		e.bus.Publish(events.Event{Type: events.TypeHumanGate, Payload: events.PayloadHumanGate{TaskID: task.ID, Question: "Agent retries exhausted — continue past this task's failure or abort the build?"}})
		approved, _ := onGate(ctx, task.ID, attempt+1)
		if approved {
			task.RetryCount = attempt + 1
			cascaded := sched.Fail(task.ID, models.FailureReasonRetriesExhausted)
			e.publishTaskFailed(task, models.FailureReasonRetriesExhausted)
			for _, id := range cascaded {
				if t := sched.Task(id); t != nil {
					e.publishTaskFailed(t, models.FailureReasonPredecessorFailed)
				}
			}
			return false
		}
		return true
	}
}

func (e *Executor) publishTaskFailed(task *models.Task, reason models.FailureReason) {
	e.bus.Publish(events.Event{Type: events.TypeTaskFailed, Payload: events.PayloadTaskFailed{
		PayloadTask: events.PayloadTask{TaskID: task.ID, TaskName: task.Name, AgentName: task.AgentName},
		Reason:      string(reason),
		RetryCount:  task.RetryCount,
	}})
}

func (e *Executor) onTaskSuccess(ctx context.Context, root string, task *models.Task, agent *models.Agent, summary string, mu *sync.Mutex, result *Result) {
	if err := e.contextMgr.RecordResult(task.ID, summary); err != nil {
		slog.Warn("record result failed", "task_id", task.ID, "error", err)
	}

	commit, ok, err := e.vstore.Commit(ctx, root, fmt.Sprintf("%s: %s", task.Name, summary), agent.Name, task.ID)
	if err != nil {
		slog.Warn("commit failed", "task_id", task.ID, "error", err)
	}
	if ok {
		record := models.CommitRecord{
			Hash: commit.Hash, ShortHash: commit.ShortHash, Message: commit.Message,
			AgentName: commit.AgentName, TaskID: commit.TaskID, ChangedPaths: commit.ChangedPaths,
		}
		mu.Lock()
		result.Commits = append(result.Commits, record)
		mu.Unlock()
		e.bus.Publish(events.Event{Type: events.TypeCommitCreated, Payload: events.PayloadCommitCreated{
			Hash: commit.Hash, ShortHash: commit.ShortHash, Message: commit.Message,
			AgentName: commit.AgentName, TaskID: commit.TaskID, ChangedPaths: commit.ChangedPaths,
		}})
	}

	if e.teaching != nil {
		if note, ok := e.teaching.TeachingMoment(ctx, task, summary); ok {
			e.bus.Publish(events.Event{Type: events.TypeTeachingMoment, Payload: events.PayloadTeachingMoment{TaskID: task.ID, Note: note}})
		}
	}

	e.bus.Publish(events.Event{Type: events.TypeTaskCompleted, Payload: events.PayloadTask{TaskID: task.ID, TaskName: task.Name, AgentName: agent.Name}})
}

// TokenUsage returns the session-wide accumulated token/cost usage, for
// the controller's build-memory recording (spec.md §4.13).
func (e *Executor) TokenUsage() models.TokenUsage {
	return e.tokens.SessionUsage()
}

const (
	markerNone = iota
	markerOutputLimit
	markerContextWindow
)

func classifyMarker(summary string) int {
	switch {
	case hasPrefix(summary, "OUTPUT_LIMIT_REACHED:"):
		return markerOutputLimit
	case hasPrefix(summary, "CONTEXT_WINDOW_EXCEEDED:"):
		return markerContextWindow
	default:
		return markerNone
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (e *Executor) dispatcherOptions(model string, maxTurns, maxCompletionTokens int) dispatcher.Options {
	return dispatcher.Options{
		Model:               model,
		MaxTurns:            maxTurns,
		MaxCompletionTokens: maxCompletionTokens,
		TimeoutSec:          e.dispatchTimeoutSec,
		EnableStreaming:     true,
		EnableToolCalling:   true,
		AllowedTools:        []string{"Read", "Write", "Edit", "MultiEdit", "Glob", "Grep", "LS", "Bash", "NotebookRead", "NotebookEdit"},
	}
}
