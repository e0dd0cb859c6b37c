package api

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/elisa-build/elisa/internal/config"
	"github.com/elisa-build/elisa/internal/contextmgr"
	"github.com/elisa-build/elisa/internal/controller"
	"github.com/elisa-build/elisa/internal/deploy"
	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/eventbus"
	"github.com/elisa-build/elisa/internal/executor"
	"github.com/elisa-build/elisa/internal/memory"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/planner"
	"github.com/elisa-build/elisa/internal/prompt"
	"github.com/elisa-build/elisa/internal/sandbox"
	"github.com/elisa-build/elisa/internal/sessionstore"
	"github.com/elisa-build/elisa/internal/testphase"
	"github.com/elisa-build/elisa/internal/tokens"
	"github.com/elisa-build/elisa/internal/versionstore"
	"github.com/elisa-build/elisa/internal/workspace"
)

// SharedDeps are the process-wide singletons every session's Controller
// is built from. Constructed once in cmd/elisad and handed to the
// Orchestrator.
type SharedDeps struct {
	Config       *config.Config
	Model        dispatcher.LanguageModel
	PlannerModel dispatcher.LanguageModel // usually the same Model; split out so a cheaper planning model can be substituted
	VStore       versionstore.VersionStore
	Memory       *memory.Store
	Judge        controller.Judge
	Rates        map[string]tokens.Rates
	PortalOpener deploy.PortalOpener    // nil skips portal initialization
	Flasher      deploy.HardwareFlasher // nil defaults to deploy.StubFlasher
	Teaching     executor.TeachingEngine

	WebDeployCommand string
	WebDeployArgs    []string
}

// runningSession bundles the live state the Orchestrator needs to route
// HTTP requests at a session beyond what sessionstore.Store already
// tracks (the bus for WS subscription, the controller for gate/cancel).
type runningSession struct {
	bus        *eventbus.Bus
	controller *controller.Controller
}

// Orchestrator owns every live session's wiring: it is the "session
// factory" the HTTP layer drives, constructing a fresh per-session
// Controller/Bus pair from SharedDeps and running it to completion in
// its own goroutine.
type Orchestrator struct {
	deps  SharedDeps
	store *sessionstore.Store

	mu       sync.RWMutex
	sessions map[string]*runningSession
}

// NewOrchestrator creates an Orchestrator. store should already have its
// pruner goroutine started by the caller.
func NewOrchestrator(deps SharedDeps, store *sessionstore.Store) *Orchestrator {
	return &Orchestrator{
		deps:     deps,
		store:    store,
		sessions: make(map[string]*runningSession),
	}
}

// StartSession provisions a new session and launches its Run in a
// background goroutine, returning the session id immediately (spec.md
// §6 "Kicks off run").
func (o *Orchestrator) StartSession(spec *models.Spec, workspacePath string, restartMode models.RestartMode, userWorkspace bool) (string, error) {
	id := uuid.New().String()
	sess := models.NewSession(id, spec, workspacePath, restartMode, userWorkspace)

	ctx, cancel := context.WithCancel(context.Background())
	sess.CancelFn = cancel

	bus := eventbus.New(id)
	wsManager := workspace.NewManager(bus)
	layout := workspace.NewLayout(workspacePath)

	// Ensure the directories sandboxTools/ctxMgr need exist; the
	// restart-mode-specific reset happens inside Controller.Run.
	if err := wsManager.Provision(workspacePath); err != nil {
		bus.Close()
		return "", fmt.Errorf("provision workspace: %w", err)
	}

	sandboxTools := sandbox.New(workspacePath)
	disp := dispatcher.New(o.deps.Model, sandboxTools)
	ctxMgr := contextmgr.New(layout.CommsDir(), filepath.Join(layout.ContextDir(), "nugget_context.md"), 0)
	tracker := tokens.New(o.deps.Rates)

	cfg := o.deps.Config
	exec := executor.New(executor.Options{
		Bus: bus, WSManager: wsManager, WSSnapshot: workspace.NewSnapshotter(),
		VStore: o.deps.VStore, Dispatcher: disp, ContextMgr: ctxMgr,
		PromptB: prompt.New(), Tokens: tracker,
		Ladder: executor.RetryLadder{
			MaxTurnsDefault:        cfg.MaxTurnsDefault,
			MaxTurnsRetryIncrement: cfg.MaxTurnsRetryIncrement,
			RetryLimit:             cfg.RetryLimit,
			CompletionTokensStart:  cfg.CompletionTokensStart,
			CompletionTokensStep:   cfg.CompletionTokensStep,
			CompletionTokensCap:    cfg.CompletionTokensCap,
		},
		Model: cfg.OpenAIModel, FallbackModel: cfg.OutputLimitFallbackModel,
		Teaching: o.deps.Teaching, Concurrency: cfg.SchedulerConcurrency,
		DispatchTimeoutSec: int(cfg.DispatchTimeout.Seconds()),
	})

	plannerModel := o.deps.PlannerModel
	if plannerModel == nil {
		plannerModel = o.deps.Model
	}
	p := planner.New(plannerModel, cfg.OpenAIModel)
	tp := testphase.New(testphase.StubRunner{})
	dm := deploy.NewManager()

	ctrl := controller.New(controller.Options{
		Session: sess, Bus: bus, WSManager: wsManager, VStore: o.deps.VStore,
		Planner: p, Executor: exec, TestPhase: tp, DeployManager: dm,
		PortalOpener: o.deps.PortalOpener, Flasher: o.deps.Flasher,
		Memory: o.deps.Memory, Judge: o.deps.Judge, JudgeThreshold: cfg.JudgeMinScore,
		WebDeployCommand: o.deps.WebDeployCommand, WebDeployArgs: o.deps.WebDeployArgs,
	})

	o.store.Put(sess)
	o.mu.Lock()
	o.sessions[id] = &runningSession{bus: bus, controller: ctrl}
	o.mu.Unlock()

	go func() {
		_ = ctrl.Run(ctx, spec)

		// Keep the bus/controller reachable for the same grace period the
		// session store uses before evicting the session itself (spec.md
		// §3 "Destroyed after a grace period following terminal state"),
		// so a client already streaming the tail of the run isn't cut off.
		time.Sleep(cfg.SessionGracePeriod)
		o.mu.Lock()
		delete(o.sessions, id)
		o.mu.Unlock()
		bus.Close()
	}()

	return id, nil
}

// Session returns the stored session, or nil.
func (o *Orchestrator) Session(id string) *models.Session {
	return o.store.Get(id)
}

// Bus returns the event bus for a live session, or nil once the run
// goroutine in StartSession has dropped it after the grace period.
func (o *Orchestrator) Bus(id string) *eventbus.Bus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if rs, ok := o.sessions[id]; ok {
		return rs.bus
	}
	return nil
}

// ErrSessionNotFound is returned by Cancel/Gate/Answer when id names no
// live session, distinct from a downstream controller error (e.g. "no
// gate is pending") so the HTTP layer can map the two to different
// status codes.
var ErrSessionNotFound = errors.New("session not found")

// Cancel cancels a running session.
func (o *Orchestrator) Cancel(id string) error {
	rs := o.running(id)
	if rs == nil {
		return ErrSessionNotFound
	}
	rs.controller.Cancel()
	return nil
}

// Gate resolves the pending human gate for a session.
func (o *Orchestrator) Gate(id string, approved bool, feedback string) error {
	rs := o.running(id)
	if rs == nil {
		return ErrSessionNotFound
	}
	return rs.controller.AnswerGate(approved, feedback)
}

// Answer resolves a pending agent question for a task within a session.
func (o *Orchestrator) Answer(id, taskID string, answers map[string]any) error {
	rs := o.running(id)
	if rs == nil {
		return ErrSessionNotFound
	}
	return rs.controller.AnswerQuestion(taskID, answers)
}

// AgentSDKStatus reports whether the in-process LLM dispatch client is
// wired, for GET /api/health's "agentSdk" field. spec.md §6 does not
// elaborate on what "agentSdk" means beyond the found/not_found enum;
// there is no external vendor SDK binary in this architecture (the
// dispatcher talks to the vendor's HTTP API directly per spec.md §4.7),
// so this reports on that client's construction instead.
func (o *Orchestrator) AgentSDKStatus() string {
	if o.deps.Model == nil {
		return "not_found"
	}
	return "found"
}

func (o *Orchestrator) running(id string) *runningSession {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sessions[id]
}
