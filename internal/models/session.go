// Package models holds the core data types shared across the build
// pipeline: sessions, specs, tasks, agents, commits, test and judge
// results, and build-memory records.
package models

import (
	"context"
	"sync"
	"time"
)

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStatePlanning  SessionState = "planning"
	SessionStateExecuting SessionState = "executing"
	SessionStateTesting   SessionState = "testing"
	SessionStateDeploying SessionState = "deploying"
	SessionStateJudging   SessionState = "judging"
	SessionStateDone      SessionState = "done"
	SessionStateError     SessionState = "error"
)

// RestartMode controls workspace reuse semantics on session start.
type RestartMode string

const (
	RestartModeContinue RestartMode = "continue"
	RestartModeClean    RestartMode = "clean"
)

// GateResolver is the suspended human-gate decision point for a session.
// At most one may be pending at a time.
type GateResolver struct {
	TaskID   string
	Question string
	Context  string
	resolved chan GateAnswer
	once     sync.Once
}

// GateAnswer is the human response to a gate.
type GateAnswer struct {
	Approved bool
	Feedback string
}

// NewGateResolver creates a resolver with a buffered answer channel.
func NewGateResolver(taskID, question, context string) *GateResolver {
	return &GateResolver{
		TaskID:   taskID,
		Question: question,
		Context:  context,
		resolved: make(chan GateAnswer, 1),
	}
}

// Resolve delivers the answer to the single waiter. Safe to call once;
// subsequent calls are a silent no-op (per spec.md §9 design note).
func (g *GateResolver) Resolve(answer GateAnswer) {
	g.once.Do(func() {
		g.resolved <- answer
	})
}

// Wait blocks until Resolve is called or ctx is cancelled. A cancelled
// ctx (e.g. from Session.MarkCancelled, which cancels the same ctx the
// run was started with) returns a synthetic rejection rather than
// hanging forever — the caller's retry/gate logic treats it exactly
// like a human rejecting the gate.
func (g *GateResolver) Wait(ctx context.Context) GateAnswer {
	select {
	case a := <-g.resolved:
		return a
	case <-ctx.Done():
		return GateAnswer{Approved: false, Feedback: "cancelled"}
	}
}

// QuestionResolver is a suspended agent-question decision point, keyed by
// task id. At most one may be pending per task.
type QuestionResolver struct {
	TaskID   string
	resolved chan map[string]string
	once     sync.Once
}

// NewQuestionResolver creates a resolver with a buffered answer channel.
func NewQuestionResolver(taskID string) *QuestionResolver {
	return &QuestionResolver{
		TaskID:   taskID,
		resolved: make(chan map[string]string, 1),
	}
}

// Resolve delivers the answers to the single waiter. Safe to call once.
func (q *QuestionResolver) Resolve(answers map[string]string) {
	q.once.Do(func() {
		q.resolved <- answers
	})
}

// Wait blocks until Resolve is called or ctx is cancelled, returning
// nil on cancellation so a pending question never blocks shutdown.
func (q *QuestionResolver) Wait(ctx context.Context) map[string]string {
	select {
	case a := <-q.resolved:
		return a
	case <-ctx.Done():
		return nil
	}
}

// Session is the lifetime of one build run, with its own workspace and
// event stream. All mutable fields are guarded by Mu.
type Session struct {
	Mu sync.Mutex

	ID            string
	State         SessionState
	Spec          *Spec
	WorkspacePath string
	RestartMode   RestartMode
	UserWorkspace bool

	Cancelled bool
	CancelFn  func()

	GateResolver      *GateResolver
	QuestionResolvers map[string]*QuestionResolver

	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time
}

// NewSession creates a session in the idle state.
func NewSession(id string, spec *Spec, workspacePath string, restartMode RestartMode, userWorkspace bool) *Session {
	now := time.Now()
	return &Session{
		ID:                id,
		State:             SessionStateIdle,
		Spec:              spec,
		WorkspacePath:     workspacePath,
		RestartMode:       restartMode,
		UserWorkspace:     userWorkspace,
		QuestionResolvers: make(map[string]*QuestionResolver),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// SetState transitions the session to a new state under the lock.
// Per spec.md §3, transitions are monotonically forward except cancel,
// which jumps straight to done (other failures end in error); this
// method does not itself enforce
// monotonicity (the controller is the only writer and already only
// moves forward), it just records the transition and timestamp.
func (s *Session) SetState(state SessionState) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.State = state
	s.UpdatedAt = time.Now()
	if state == SessionStateDone || state == SessionStateError {
		s.FinishedAt = time.Now()
	}
}

// GetState reads the current state under the lock.
func (s *Session) GetState() SessionState {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.State
}

// MarkCancelled sets the cancellation flag exactly once and invokes the
// stored cancel function. Idempotent: calling cancel twice, or after the
// session reached a terminal state, is a no-op beyond the flag itself.
func (s *Session) MarkCancelled() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.Cancelled {
		return
	}
	s.Cancelled = true
	if s.CancelFn != nil {
		s.CancelFn()
	}
}

// IsCancelled reports whether cancel() has been called.
func (s *Session) IsCancelled() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Cancelled
}

// SetGateResolver installs the single pending gate resolver. Replaces any
// previous one — callers are expected to have already consumed it.
func (s *Session) SetGateResolver(g *GateResolver) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.GateResolver = g
}

// TakeGateResolver returns and clears the pending gate resolver, or nil.
func (s *Session) TakeGateResolver() *GateResolver {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	g := s.GateResolver
	s.GateResolver = nil
	return g
}

// SetQuestionResolver installs a pending question resolver for a task.
func (s *Session) SetQuestionResolver(q *QuestionResolver) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.QuestionResolvers[q.TaskID] = q
}

// TakeQuestionResolver returns and clears the pending resolver for a task,
// or nil if none is pending.
func (s *Session) TakeQuestionResolver(taskID string) *QuestionResolver {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	q := s.QuestionResolvers[taskID]
	delete(s.QuestionResolvers, taskID)
	return q
}
