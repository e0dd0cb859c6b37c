package models

import "time"

// CommitRecord is produced per successful task. Commits are ordered by
// CreatedAt; deletion is not modeled.
type CommitRecord struct {
	Hash         string    `json:"hash"`
	ShortHash    string    `json:"short_hash"`
	Message      string    `json:"message"`
	AgentName    string    `json:"agent_name"`
	TaskID       string    `json:"task_id"`
	CreatedAt    time.Time `json:"created_at"`
	ChangedPaths []string  `json:"changed_paths"`
}

// TestResult is the outcome of a single named test.
type TestResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// TestPhaseAggregate is the phase-level summary of all test results.
type TestPhaseAggregate struct {
	Results     []TestResult `json:"results"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	Total       int          `json:"total"`
	CoveragePct *float64     `json:"coverage_pct,omitempty"`
}

// JudgeCheck is one weighted scoring dimension in a JudgeResult.
type JudgeCheck struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`
	Passed   bool    `json:"passed"`
	Details  string  `json:"details"`
}

// JudgeResult is the outcome of the objective acceptance judge.
type JudgeResult struct {
	Score          int          `json:"score"` // 0-100
	Threshold      int          `json:"threshold"`
	Passed         bool         `json:"passed"`
	RawPassed      bool         `json:"raw_passed"`
	Overridden     bool         `json:"overridden"`
	Checks         []JudgeCheck `json:"checks"`
	BlockingIssues []string     `json:"blocking_issues"`
}

// OutcomeAggregate summarizes a run's results for build-memory storage.
type OutcomeAggregate struct {
	TasksCompleted int     `json:"tasks_completed"`
	TasksTotal     int     `json:"tasks_total"`
	TestsPassed    int     `json:"tests_passed"`
	TestsTotal     int     `json:"tests_total"`
	CoveragePct    float64 `json:"coverage_pct"`
	TokenTotal     int     `json:"token_total"`
	CostUsd        float64 `json:"cost_usd"`
	JudgeScore     int     `json:"judge_score"`
	Overridden     bool    `json:"overridden"`
	OverallSuccess bool    `json:"overall_success"`
}

// MemoryRecord is one append-only entry in the build memory store.
type MemoryRecord struct {
	SessionID        string           `json:"session_id"`
	CreatedAt        time.Time        `json:"created_at"`
	Goal             string           `json:"goal"`
	NuggetType       string           `json:"nugget_type"`
	DeploymentTarget DeploymentTarget `json:"deployment_target"`
	ProjectType      string           `json:"project_type"`
	Keywords         []string         `json:"keywords"`
	SkillsUsed       []string         `json:"skills_used"`
	RulesUsed        []string         `json:"rules_used"`
	CommitHighlights []string         `json:"commit_highlights"`
	Outcome          OutcomeAggregate `json:"outcome"`
}

// PlannerContextEntry is one similar prior run surfaced to the planner.
type PlannerContextEntry struct {
	Record     MemoryRecord `json:"record"`
	Similarity float64      `json:"similarity"`
}

// ReusablePattern is a skill or rule suggested for reuse by build memory.
type ReusablePattern struct {
	Kind   string  `json:"kind"` // "skill" or "rule"
	Name   string  `json:"name"`
	Prompt string  `json:"prompt"`
	Weight float64 `json:"weight"`
}

// TokenUsage aggregates token consumption for a session.
type TokenUsage struct {
	InputTokens     int     `json:"input_tokens"`
	OutputTokens    int     `json:"output_tokens"`
	CachedTokens    int     `json:"cached_tokens"`
	ReasoningTokens int     `json:"reasoning_tokens"`
	CostUsd         float64 `json:"cost_usd"`
}
