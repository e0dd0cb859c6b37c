// Package controller implements the Pipeline Controller (spec.md
// §4.1): the per-session state machine that sequences plan → (init
// portals) → execute → test → deploy → judge → complete, wiring the
// session's gate/question resolvers to the executor and judge human
// gates, and recording every run to build memory before emitting
// session_complete. Grounded on tarsy's pkg/queue WorkerPool, which
// plays the analogous "one state machine drives one session's phases"
// role (pkg/queue/pool.go's RegisterSession/CancelSession).
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/elisa-build/elisa/internal/deploy"
	"github.com/elisa-build/elisa/internal/events"
	"github.com/elisa-build/elisa/internal/executor"
	"github.com/elisa-build/elisa/internal/memory"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/planner"
	"github.com/elisa-build/elisa/internal/testphase"
	"github.com/elisa-build/elisa/internal/tokenize"
	"github.com/elisa-build/elisa/internal/versionstore"
	"github.com/elisa-build/elisa/internal/workspace"
)

// Bus is the minimal publish surface the controller needs.
type Bus interface {
	Publish(events.Event)
}

// Judge scores a completed run. A narrow interface so controller
// doesn't depend on the judge package's corpus-building internals.
type Judge interface {
	Score(in JudgeInput) models.JudgeResult
}

// JudgeInput mirrors judge.Input so this package doesn't need to
// import judge's file-walking internals directly into its signature.
type JudgeInput struct {
	Spec          *models.Spec
	Tasks         []*models.Task
	Commits       []models.CommitRecord
	Tests         models.TestPhaseAggregate
	WorkspaceRoot string
	Threshold     int
}

// JudgeFunc adapts a plain scoring function (e.g. judge.Score) to the
// Judge interface.
type JudgeFunc func(in JudgeInput) models.JudgeResult

// Score implements Judge.
func (f JudgeFunc) Score(in JudgeInput) models.JudgeResult { return f(in) }

// Options configures a new Controller. Exactly one Controller exists
// per Session.
type Options struct {
	Session        *models.Session
	Bus            Bus
	WSManager      *workspace.Manager
	VStore         versionstore.VersionStore
	Planner        *planner.Planner
	Executor       *executor.Executor
	TestPhase      *testphase.Phase
	DeployManager  *deploy.Manager
	PortalOpener   deploy.PortalOpener    // nil skips portal initialization
	Flasher        deploy.HardwareFlasher // nil defaults to deploy.StubFlasher
	Memory         *memory.Store
	Judge          Judge
	JudgeThreshold int

	// WebDeployCommand/-Args start the workspace's web server as a
	// child process when spec.deployment.target is web/both. Empty
	// command skips the web deploy step (no web-capable teacher
	// harness to launch in a bare module).
	WebDeployCommand string
	WebDeployArgs    []string
}

// Controller drives one session through the full pipeline.
type Controller struct {
	session        *models.Session
	bus            Bus
	wsManager      *workspace.Manager
	vstore         versionstore.VersionStore
	planner        *planner.Planner
	exec           *executor.Executor
	testPhase      *testphase.Phase
	deployManager  *deploy.Manager
	portalOpener   deploy.PortalOpener
	flasher        deploy.HardwareFlasher
	memory         *memory.Store
	judge          Judge
	judgeThreshold int

	webDeployCommand string
	webDeployArgs    []string

	mu      sync.Mutex
	running bool
	commits []models.CommitRecord
	testAgg models.TestPhaseAggregate
}

// New creates a Controller for one session.
func New(o Options) *Controller {
	flasher := o.Flasher
	if flasher == nil {
		flasher = deploy.StubFlasher{}
	}
	return &Controller{
		session: o.Session, bus: o.Bus, wsManager: o.WSManager, vstore: o.VStore,
		planner: o.Planner, exec: o.Executor, testPhase: o.TestPhase,
		deployManager: o.DeployManager, portalOpener: o.PortalOpener, flasher: flasher,
		memory: o.Memory, judge: o.Judge, judgeThreshold: o.JudgeThreshold,
		webDeployCommand: o.WebDeployCommand, webDeployArgs: o.WebDeployArgs,
	}
}

// GetCommits returns the commits produced by the run so far.
func (c *Controller) GetCommits() []models.CommitRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.CommitRecord, len(c.commits))
	copy(out, c.commits)
	return out
}

// GetTestResults returns the test phase's aggregate outcome.
func (c *Controller) GetTestResults() models.TestPhaseAggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testAgg
}

// Cancel signals the session's cancellation flag. Run observes this at
// phase boundaries and inside the executor's dispatch loop.
func (c *Controller) Cancel() {
	c.session.MarkCancelled()
}

// AnswerGate resolves the single pending human gate for this session
// (either a per-task retry gate or the judge override gate).
func (c *Controller) AnswerGate(approved bool, feedback string) error {
	g := c.session.TakeGateResolver()
	if g == nil {
		return fmt.Errorf("no gate is pending")
	}
	g.Resolve(models.GateAnswer{Approved: approved, Feedback: feedback})
	return nil
}

// AnswerQuestion resolves a pending agent question for a task.
func (c *Controller) AnswerQuestion(taskID string, answers map[string]any) error {
	q := c.session.TakeQuestionResolver(taskID)
	if q == nil {
		return fmt.Errorf("no question is pending for task %q", taskID)
	}
	converted := make(map[string]string, len(answers))
	for k, v := range answers {
		converted[k] = fmt.Sprint(v)
	}
	q.Resolve(converted)
	return nil
}

// Run drives the session through plan → (init portals) → execute →
// test → deploy → judge → complete. Exactly one Run may be active per
// session; a second concurrent call returns an error immediately.
func (c *Controller) Run(ctx context.Context, spec *models.Spec) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("a run is already active for this session")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	root := c.session.WorkspacePath

	if _, err := c.wsManager.Reset(root, c.session.RestartMode); err != nil {
		return c.fail(fmt.Sprintf("provision workspace: %v", err), nil)
	}

	if c.cancelledOrDone(ctx) {
		return c.cancelTerminate()
	}

	// --- plan ---
	c.session.SetState(models.SessionStatePlanning)
	c.bus.Publish(events.Event{Type: events.TypePlanningStarted})

	plannerCtx := planner.PlannerContext{}
	if c.memory != nil {
		plannerCtx.SimilarRuns = c.memory.GetPlannerContext(spec, 3)
	}
	plan, err := c.planner.Plan(ctx, spec, plannerCtx)
	if err != nil {
		return c.fail(fmt.Sprintf("planning failed: %v", err), nil)
	}

	taskNames := make([]string, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		taskNames = append(taskNames, t.Name)
	}
	c.bus.Publish(events.Event{Type: events.TypePlanReady, Payload: events.PayloadPlanReady{
		TaskCount: len(plan.Tasks), TaskNames: taskNames, PlanExplanation: plan.PlanExplanation,
	}})

	if err := c.vstore.InitRepo(ctx, root, spec.Goal); err != nil {
		slog.Warn("init repo failed", "session_id", c.session.ID, "error", err)
	}

	if c.cancelledOrDone(ctx) {
		return c.cancelTerminate()
	}

	// --- initialize portals (if needed, before the executor starts) ---
	snap := deploy.Snapshot{Deployment: spec.Deployment, Portals: spec.Portals}
	if deploy.ShouldInitializePortals(snap) && c.portalOpener != nil {
		if errs := c.deployManager.OpenPortals(ctx, spec.Portals, c.portalOpener); len(errs) > 0 {
			for _, e := range errs {
				slog.Warn("portal open failed", "session_id", c.session.ID, "error", e)
			}
		}
	}

	// --- execute ---
	c.session.SetState(models.SessionStateExecuting)
	onGate := c.makeGateFunc()
	onQuestion := c.makeQuestionFunc()

	execResult, err := c.exec.Run(ctx, root, plan.Scheduler, plan.TaskMap, plan.AgentMap, spec, onGate, onQuestion)
	c.mu.Lock()
	c.commits = execResult.Commits
	c.mu.Unlock()
	if err != nil {
		return c.fail(err.Error(), plan.Tasks)
	}

	if c.cancelledOrDone(ctx) {
		return c.cancelTerminate()
	}

	// --- test ---
	c.session.SetState(models.SessionStateTesting)
	c.bus.Publish(events.Event{Type: events.TypeTestStarted})
	testAgg, err := c.testPhase.Run(ctx, root, spec.Workflow)
	if err != nil {
		return c.fail(fmt.Sprintf("test phase failed: %v", err), plan.Tasks)
	}
	c.mu.Lock()
	c.testAgg = testAgg
	c.mu.Unlock()
	for _, tr := range testAgg.Results {
		c.bus.Publish(events.Event{Type: events.TypeTestResult, Payload: events.PayloadTestResult{
			Name: tr.Name, Passed: tr.Passed, Details: tr.Details,
		}})
	}
	c.bus.Publish(events.Event{Type: events.TypeTestPhaseComplete, Payload: events.PayloadTestPhaseComplete{
		Passed: testAgg.Passed, Failed: testAgg.Failed, Total: testAgg.Total, CoveragePct: testAgg.CoveragePct,
	}})

	if c.cancelledOrDone(ctx) {
		return c.cancelTerminate()
	}

	// --- deploy ---
	c.session.SetState(models.SessionStateDeploying)
	c.runDeployPhase(ctx, root, snap)

	if c.cancelledOrDone(ctx) {
		return c.cancelTerminate()
	}

	// --- judge ---
	c.session.SetState(models.SessionStateJudging)
	c.bus.Publish(events.Event{Type: events.TypeJudgeStarted})
	judgeResult := c.judge.Score(JudgeInput{
		Spec: spec, Tasks: plan.Tasks, Commits: c.GetCommits(), Tests: testAgg,
		WorkspaceRoot: root, Threshold: c.judgeThreshold,
	})

	if !judgeResult.RawPassed {
		c.bus.Publish(events.Event{Type: events.TypeHumanGate, Payload: events.PayloadHumanGate{
			TaskID: events.JudgeTaskID, Question: "Judge did not pass this build — override and accept anyway?",
		}})
		g := models.NewGateResolver(events.JudgeTaskID, "Judge override", "")
		c.session.SetGateResolver(g)
		answer := g.Wait(ctx)
		if !answer.Approved {
			c.deployManager.ClosePortals()
			return c.fail("Judge did not pass this build and the override was rejected: Build stopped", plan.Tasks)
		}
		judgeResult.Overridden = true
		judgeResult.Passed = true
	}

	c.bus.Publish(events.Event{Type: events.TypeJudgeResult, Payload: judgePayload(judgeResult)})

	// --- complete ---
	c.deployManager.ClosePortals() // free serial devices promptly, before the summary event

	var suggestionNames []string
	if c.memory != nil {
		for _, p := range c.memory.SuggestReusablePatterns(spec, nil, 4) {
			suggestionNames = append(suggestionNames, p.Name)
		}
		if err := c.memory.RecordRun(c.buildMemoryRecord(spec, plan.Tasks, testAgg, judgeResult)); err != nil {
			slog.Warn("record build memory failed", "session_id", c.session.ID, "error", err)
		}
	}

	c.session.SetState(models.SessionStateDone)
	c.bus.Publish(events.Event{Type: events.TypeSessionComplete, Payload: events.PayloadSessionComplete{
		Summary:     summarize(spec, plan.Tasks, testAgg, judgeResult),
		Judge:       judgePayload(judgeResult),
		Suggestions: suggestionNames,
	}})
	return nil
}

func (c *Controller) runDeployPhase(ctx context.Context, root string, snap deploy.Snapshot) {
	if !deploy.ShouldDeployWeb(snap) && !deploy.ShouldDeployHardware(snap) {
		return
	}
	c.bus.Publish(events.Event{Type: events.TypeDeployStarted})

	if deploy.ShouldDeployWeb(snap) {
		if c.webDeployCommand == "" {
			c.bus.Publish(events.Event{Type: events.TypeDeployProgress, Payload: events.PayloadDeployProgress{Message: "no web deploy command configured; skipping"}})
		} else {
			handle, err := deploy.DeployWeb(ctx, root, c.webDeployCommand, c.webDeployArgs...)
			if err != nil {
				c.bus.Publish(events.Event{Type: events.TypeDeployComplete, Payload: events.PayloadDeployComplete{
					Target: string(snap.Deployment.Target), Success: false, Message: err.Error(),
				}})
			} else {
				c.deployManager.SetWeb(handle)
				c.bus.Publish(events.Event{Type: events.TypeDeployComplete, Payload: events.PayloadDeployComplete{
					Target: string(snap.Deployment.Target), Success: true, Message: "web server started",
				}})
			}
		}
	}

	if deploy.ShouldDeployHardware(snap) && snap.Deployment.AutoFlash {
		if err := c.flasher.Flash(ctx, root); err != nil {
			c.bus.Publish(events.Event{Type: events.TypeDeployComplete, Payload: events.PayloadDeployComplete{
				Target: string(snap.Deployment.Target), Success: false, Message: err.Error(),
			}})
		} else {
			c.bus.Publish(events.Event{Type: events.TypeDeployComplete, Payload: events.PayloadDeployComplete{
				Target: string(snap.Deployment.Target), Success: true, Message: "hardware flashed",
			}})
		}
	}
}

func (c *Controller) makeGateFunc() executor.GateFunc {
	return func(ctx context.Context, taskID string, retryCount int) (bool, string) {
		g := models.NewGateResolver(taskID, "Agent retries exhausted on this task — continue past its failure or abort the build?", "")
		c.session.SetGateResolver(g)
		answer := g.Wait(ctx)
		return answer.Approved, answer.Feedback
	}
}

// makeQuestionFunc wires the executor's question hook to the session's
// per-task QuestionResolver. The executor passes it through to runTask
// but never calls it: the fixed tool allowlist in internal/sandbox has
// no ask-user tool.
func (c *Controller) makeQuestionFunc() executor.QuestionFunc {
	return func(ctx context.Context, taskID string, question map[string]any) map[string]any {
		q := models.NewQuestionResolver(taskID)
		c.session.SetQuestionResolver(q)
		fields := make(map[string]string, len(question))
		for k, v := range question {
			fields[k] = fmt.Sprint(v)
		}
		c.bus.Publish(events.Event{Type: events.TypeAgentQuestion, Payload: events.PayloadAgentQuestion{
			TaskID: taskID, Question: "agent requested input", Fields: fields,
		}})
		answers := q.Wait(ctx)
		out := make(map[string]any, len(answers))
		for k, v := range answers {
			out[k] = v
		}
		return out
	}
}

// cancelledOrDone reports whether the run should stop at the current
// phase boundary, per spec.md §4.1.
func (c *Controller) cancelledOrDone(ctx context.Context) bool {
	return ctx.Err() != nil || c.session.IsCancelled()
}

func (c *Controller) cancelTerminate() error {
	c.session.SetState(models.SessionStateDone)
	c.bus.Publish(events.Event{Type: events.TypeError, Payload: events.PayloadError{Message: "build cancelled", Recoverable: false}})
	c.deployManager.Teardown()
	return fmt.Errorf("build cancelled")
}

// fail transitions the session to error, emits a terminal error event,
// tears down deploy resources best-effort, and returns the failure as
// an error. tasks is accepted for future use (it is not currently
// consulted) — failures before planning completes have no task list.
func (c *Controller) fail(message string, tasks []*models.Task) error {
	c.session.SetState(models.SessionStateError)
	c.bus.Publish(events.Event{Type: events.TypeError, Payload: events.PayloadError{Message: message, Recoverable: false}})
	c.deployManager.Teardown()
	return fmt.Errorf("%s", message)
}

func judgePayload(r models.JudgeResult) events.PayloadJudgeResult {
	return events.PayloadJudgeResult{
		Score: r.Score, Threshold: r.Threshold, Passed: r.Passed,
		RawPassed: r.RawPassed, Overridden: r.Overridden, BlockingIssues: r.BlockingIssues,
	}
}

func summarize(spec *models.Spec, tasks []*models.Task, tests models.TestPhaseAggregate, judge models.JudgeResult) string {
	done := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusDone {
			done++
		}
	}
	return fmt.Sprintf(
		"Completed %d/%d tasks for %q. Tests: %d passed, %d failed. Judge score %d/100 (threshold %d)%s.",
		done, len(tasks), spec.Goal, tests.Passed, tests.Failed, judge.Score, judge.Threshold,
		overrideSuffix(judge.Overridden),
	)
}

func overrideSuffix(overridden bool) string {
	if overridden {
		return ", overridden by human gate"
	}
	return ""
}

func (c *Controller) buildMemoryRecord(spec *models.Spec, tasks []*models.Task, tests models.TestPhaseAggregate, judge models.JudgeResult) models.MemoryRecord {
	done := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusDone {
			done++
		}
	}
	commits := c.GetCommits()
	highlights := make([]string, 0, len(commits))
	for _, cm := range commits {
		highlights = append(highlights, cm.Message)
		if len(highlights) >= 5 {
			break
		}
	}

	usage := c.exec.TokenUsage()
	coverage := 0.0
	if tests.CoveragePct != nil {
		coverage = *tests.CoveragePct
	}

	return models.MemoryRecord{
		SessionID:        c.session.ID,
		Goal:             spec.Goal,
		NuggetType:       stringExtra(spec, "nugget_type"),
		DeploymentTarget: spec.Deployment.Target,
		ProjectType:      spec.ProjectType,
		Keywords:         spec.Keywords(tokenize.Words),
		CommitHighlights: highlights,
		Outcome: models.OutcomeAggregate{
			TasksCompleted: done,
			TasksTotal:     len(tasks),
			TestsPassed:    tests.Passed,
			TestsTotal:     tests.Total,
			CoveragePct:    coverage,
			TokenTotal:     usage.InputTokens + usage.OutputTokens,
			CostUsd:        usage.CostUsd,
			JudgeScore:     judge.Score,
			Overridden:     judge.Overridden,
			OverallSuccess: done == len(tasks) && tests.Failed == 0 && judge.Passed,
		},
	}
}

func stringExtra(spec *models.Spec, key string) string {
	if spec.Extra == nil {
		return ""
	}
	if v, ok := spec.Extra[key].(string); ok {
		return v
	}
	return ""
}
