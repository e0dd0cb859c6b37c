// Package events defines the typed event vocabulary streamed to a
// session's single subscriber, per spec.md §6 "Live event channel".
package events

// Type is one of the fixed vocabulary of event type strings.
type Type string

const (
	TypeSessionStarted     Type = "session_started"
	TypePlanningStarted    Type = "planning_started"
	TypePlanReady          Type = "plan_ready"
	TypeTaskStarted        Type = "task_started"
	TypeTaskCompleted      Type = "task_completed"
	TypeTaskFailed         Type = "task_failed"
	TypeAgentSpawned       Type = "agent_spawned"
	TypeAgentStatus        Type = "agent_status"
	TypeAgentOutput        Type = "agent_output"
	TypeAgentMessage       Type = "agent_message"
	TypeAgentQuestion      Type = "agent_question"
	TypeToolUse            Type = "tool_use"
	TypeToolResult         Type = "tool_result"
	TypeCodeGenerated      Type = "code_generated"
	TypeCodeReviewStarted  Type = "code_review_started"
	TypeCodeReviewComplete Type = "code_review_complete"
	TypeTestStarted        Type = "test_started"
	TypeTestResult         Type = "test_result"
	TypeTestPhaseComplete  Type = "test_phase_complete"
	TypeDeployStarted      Type = "deploy_started"
	TypeDeployProgress     Type = "deploy_progress"
	TypeDeployComplete     Type = "deploy_complete"
	TypeTeachingMoment     Type = "teaching_moment"
	TypeWorkspaceCreated   Type = "workspace_created"
	TypeCommitCreated      Type = "commit_created"
	TypeJudgeStarted       Type = "judge_started"
	TypeJudgeResult        Type = "judge_result"
	TypeHumanGate          Type = "human_gate"
	TypeSessionComplete    Type = "session_complete"
	TypeError              Type = "error"
)

// JudgeTaskID is the reserved task_id used for the judge's override gate.
const JudgeTaskID = "__judge__"

// Event is one typed frame sent to a session's subscriber. Payload is
// one of the Payload* structs below (or nil for simple events).
type Event struct {
	Type      Type   `json:"type"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// PayloadSessionStarted is sent once on WS upgrade.
type PayloadSessionStarted struct {
	SessionID string `json:"session_id"`
}

// PayloadPlanReady carries the planner's output summary.
type PayloadPlanReady struct {
	TaskCount       int      `json:"task_count"`
	TaskNames       []string `json:"task_names"`
	PlanExplanation string   `json:"plan_explanation"`
}

// PayloadTask carries task-scoped lifecycle info.
type PayloadTask struct {
	TaskID    string `json:"task_id"`
	TaskName  string `json:"task_name"`
	AgentName string `json:"agent_name"`
}

// PayloadTaskFailed extends PayloadTask with failure detail.
type PayloadTaskFailed struct {
	PayloadTask
	Reason     string `json:"reason"`
	RetryCount int    `json:"retry_count"`
	Error      string `json:"error"`
}

// PayloadAgentSpawned announces a new agent instance for a task.
type PayloadAgentSpawned struct {
	TaskID    string `json:"task_id"`
	AgentName string `json:"agent_name"`
	Role      string `json:"role"`
}

// PayloadAgentStatus reports an agent status transition.
type PayloadAgentStatus struct {
	AgentName string `json:"agent_name"`
	Status    string `json:"status"`
}

// PayloadAgentOutput carries a debounced chunk of streamed assistant text.
type PayloadAgentOutput struct {
	TaskID string `json:"task_id"`
	Delta  string `json:"delta"`
}

// PayloadAgentMessage carries a role-free message (used for retry/gate context).
type PayloadAgentMessage struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// PayloadAgentQuestion is emitted when a tool call requests user input.
type PayloadAgentQuestion struct {
	TaskID   string            `json:"task_id"`
	Question string            `json:"question"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// PayloadToolUse announces a tool invocation.
type PayloadToolUse struct {
	TaskID   string `json:"task_id"`
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Input    string `json:"input"`
}

// PayloadToolResult carries a tool's (possibly truncated) output.
type PayloadToolResult struct {
	TaskID   string `json:"task_id"`
	CallID   string `json:"call_id"`
	ToolName string `json:"tool_name"`
	Output   string `json:"output"`
	IsError  bool   `json:"is_error"`
}

// PayloadCodeGenerated announces a changed file path.
type PayloadCodeGenerated struct {
	TaskID string `json:"task_id"`
	Path   string `json:"path"`
}

// PayloadTestResult mirrors models.TestResult for wire delivery.
type PayloadTestResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// PayloadTestPhaseComplete carries the aggregate test summary.
type PayloadTestPhaseComplete struct {
	Passed      int      `json:"passed"`
	Failed      int      `json:"failed"`
	Total       int      `json:"total"`
	CoveragePct *float64 `json:"coverage_pct,omitempty"`
}

// PayloadDeployProgress carries free-text deploy progress.
type PayloadDeployProgress struct {
	Message string `json:"message"`
}

// PayloadDeployComplete carries the deploy outcome.
type PayloadDeployComplete struct {
	Target  string `json:"target"`
	URL     string `json:"url,omitempty"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PayloadTeachingMoment carries a short pedagogical note about a task.
type PayloadTeachingMoment struct {
	TaskID string `json:"task_id"`
	Note   string `json:"note"`
}

// PayloadCommitCreated mirrors models.CommitRecord for wire delivery.
type PayloadCommitCreated struct {
	Hash         string   `json:"hash"`
	ShortHash    string   `json:"short_hash"`
	Message      string   `json:"message"`
	AgentName    string   `json:"agent_name"`
	TaskID       string   `json:"task_id"`
	ChangedPaths []string `json:"changed_paths"`
}

// PayloadJudgeResult mirrors models.JudgeResult for wire delivery.
type PayloadJudgeResult struct {
	Score          int      `json:"score"`
	Threshold      int      `json:"threshold"`
	Passed         bool     `json:"passed"`
	RawPassed      bool     `json:"raw_passed"`
	Overridden     bool     `json:"overridden"`
	BlockingIssues []string `json:"blocking_issues"`
}

// PayloadHumanGate is emitted for both per-task gates and the judge
// override gate (TaskID == JudgeTaskID).
type PayloadHumanGate struct {
	TaskID   string `json:"task_id"`
	Question string `json:"question"`
	Context  string `json:"context"`
}

// PayloadSessionComplete is the final non-error event of a run.
type PayloadSessionComplete struct {
	Summary     string             `json:"summary"`
	Judge       PayloadJudgeResult `json:"judge"`
	Suggestions []string           `json:"suggestions"`
}

// PayloadError carries a terminal or recoverable error notice.
type PayloadError struct {
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}
