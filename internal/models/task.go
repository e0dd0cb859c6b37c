package models

// TaskStatus is the lifecycle status of a Task within a run.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// FailureReason explains why a task entered the failed state.
type FailureReason string

const (
	FailureReasonNone              FailureReason = ""
	FailureReasonRetriesExhausted  FailureReason = "retries_exhausted"
	FailureReasonPredecessorFailed FailureReason = "predecessor_failed"
	FailureReasonGateRejected      FailureReason = "gate_rejected"
)

// Task is one node in the dependency graph, assigned to one agent.
type Task struct {
	ID                 string
	Name               string
	Description        string
	Status             TaskStatus
	AgentName          string
	Predecessors       []string
	AcceptanceCriteria []string

	RetryCount    int
	FailureReason FailureReason
}

// AgentStatus is the lifecycle status of an Agent within a run.
type AgentStatus string

const (
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusWorking AgentStatus = "working"
	AgentStatusDone    AgentStatus = "done"
	AgentStatusError   AgentStatus = "error"
)

// Agent is a role-typed persona whose prompts are dispatched to the LLM.
type Agent struct {
	Name    string
	Role    AgentRole
	Persona string
	Status  AgentStatus
}

// IsTerminal reports whether a task status is done or failed.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusDone || t.Status == TaskStatusFailed
}
