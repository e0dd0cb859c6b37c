// Package judge implements the deterministic objective acceptance
// scorer (spec.md §4.13): four weighted checks and keyword-coverage
// corpus construction bounded by file count and total size. The
// human-gate override of a failing raw verdict is handled by the
// controller, not this package.
package judge

import (
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/tokenize"
)

// Weighted check point values, per spec.md §4.13's scoring table.
const (
	weightTaskCompletion          = 35.0
	weightTestHealth              = 25.0
	weightRequirementTraceability = 25.0
	weightBehavioralTraceability  = 15.0
)

const (
	requirementCoverageThreshold = 0.6
	behavioralCoverageThreshold  = 0.5
)

// defaultThreshold is overridden by JUDGE_MIN_SCORE (see config.Config).
const defaultThreshold = 70

// maxSourceFiles and maxSourceBytes bound the corpus built from W's
// source tree, per spec.md §4.13.
const (
	maxSourceFiles = 80
	maxSourceBytes = 180 * 1024
)

// sourceExtensions is the fixed extension allowlist for corpus files.
var sourceExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".java": true, ".c": true, ".cpp": true, ".h": true,
	".md": true, ".json": true, ".yaml": true, ".yml": true,
}

// Input bundles everything the judge needs to score one run.
type Input struct {
	Spec          *models.Spec
	Tasks         []*models.Task
	Commits       []models.CommitRecord
	Tests         models.TestPhaseAggregate
	WorkspaceRoot string
	Threshold     int // 0 = use defaultThreshold
}

// Score runs the four weighted checks and returns a JudgeResult with
// RawPassed reflecting the unmodified verdict (Passed/Overridden are
// set later by the controller once any human-gate override resolves).
func Score(in Input) models.JudgeResult {
	threshold := in.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	corpus := buildCorpus(in)

	checks := []models.JudgeCheck{
		taskCompletionCheck(in.Tasks),
		testHealthCheck(in.Tests),
		requirementTraceabilityCheck(in.Spec, corpus),
		behavioralTraceabilityCheck(in.Spec, corpus),
	}

	var sumScore, sumMax float64
	for _, c := range checks {
		sumScore += c.Score
		sumMax += c.MaxScore
	}
	score := 0
	if sumMax > 0 {
		score = int(math.Round(100 * sumScore / sumMax))
	}

	var blocking []string
	for _, c := range checks {
		if !c.Passed && (c.Name == "task_completion" || c.Name == "behavioral_traceability") {
			blocking = append(blocking, c.Details)
		}
	}

	rawPassed := score >= threshold && len(blocking) == 0

	return models.JudgeResult{
		Score:          score,
		Threshold:      threshold,
		RawPassed:      rawPassed,
		Passed:         rawPassed,
		Checks:         checks,
		BlockingIssues: blocking,
	}
}

func taskCompletionCheck(tasks []*models.Task) models.JudgeCheck {
	failed := 0
	for _, t := range tasks {
		if t.Status == models.TaskStatusFailed {
			failed++
		}
	}
	allDone := failed == 0 && allTerminalDone(tasks)
	score := 0.0
	if allDone {
		score = weightTaskCompletion
	}
	details := "all tasks completed successfully"
	if !allDone {
		details = "one or more tasks failed or did not complete"
	}
	return models.JudgeCheck{Name: "task_completion", Score: score, MaxScore: weightTaskCompletion, Passed: allDone, Details: details}
}

func allTerminalDone(tasks []*models.Task) bool {
	for _, t := range tasks {
		if t.Status != models.TaskStatusDone {
			return false
		}
	}
	return true
}

func testHealthCheck(agg models.TestPhaseAggregate) models.JudgeCheck {
	healthy := agg.Failed == 0
	score := 0.0
	if healthy {
		score = weightTestHealth
	}
	details := "no failing tests"
	if !healthy {
		details = "one or more tests failed"
	}
	return models.JudgeCheck{Name: "test_health", Score: score, MaxScore: weightTestHealth, Passed: healthy, Details: details}
}

func requirementTraceabilityCheck(spec *models.Spec, corpus map[string]bool) models.JudgeCheck {
	var items []string
	for _, r := range spec.Requirements {
		items = append(items, r.Description)
	}
	avg := avgCoverage(items, corpus)
	passed := avg >= requirementCoverageThreshold
	score := 0.0
	if passed {
		score = weightRequirementTraceability
	}
	return models.JudgeCheck{
		Name: "requirement_traceability", Score: score, MaxScore: weightRequirementTraceability,
		Passed: passed, Details: "average requirement keyword coverage across workspace corpus",
	}
}

func behavioralTraceabilityCheck(spec *models.Spec, corpus map[string]bool) models.JudgeCheck {
	var items []string
	for _, bt := range spec.Workflow.BehavioralTests {
		items = append(items, bt.When+" "+bt.Then)
	}
	avg := avgCoverage(items, corpus)
	passed := len(items) == 0 || avg >= behavioralCoverageThreshold
	score := 0.0
	if passed {
		score = weightBehavioralTraceability
	}
	details := "average behavioral-test keyword coverage across workspace corpus"
	if !passed {
		details = "behavioral tests are not adequately traceable to workspace contents"
	}
	return models.JudgeCheck{
		Name: "behavioral_traceability", Score: score, MaxScore: weightBehavioralTraceability,
		Passed: passed, Details: details,
	}
}

// avgCoverage computes the mean per-item keyword coverage against corpus.
func avgCoverage(items []string, corpus map[string]bool) float64 {
	if len(items) == 0 {
		return 1 // vacuously satisfied — no items to trace
	}
	var total float64
	for _, item := range items {
		tokens := tokenize.Words(item)
		if len(tokens) == 0 {
			continue
		}
		hit := 0
		for _, tok := range tokens {
			if corpus[tok] {
				hit++
			}
		}
		total += float64(hit) / float64(len(tokens))
	}
	return total / float64(len(items))
}

// buildCorpus assembles the keyword universe from task metadata, commit
// messages, test results, and up to maxSourceFiles workspace files
// bounded by maxSourceBytes, per spec.md §4.13.
func buildCorpus(in Input) map[string]bool {
	corpus := make(map[string]bool)
	addTo := func(text string) {
		for _, w := range tokenize.Words(text) {
			corpus[w] = true
		}
	}

	for _, t := range in.Tasks {
		addTo(t.Name)
		addTo(t.Description)
		for _, ac := range t.AcceptanceCriteria {
			addTo(ac)
		}
	}
	for _, c := range in.Commits {
		addTo(c.Message)
	}
	for _, tr := range in.Tests.Results {
		addTo(tr.Name)
		addTo(tr.Details)
	}

	if in.WorkspaceRoot != "" {
		addSourceCorpus(in.WorkspaceRoot, addTo)
	}
	return corpus
}

func addSourceCorpus(root string, addTo func(string)) {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if sourceExtensions[filepath.Ext(path)] {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)

	var totalBytes int
	for i, f := range files {
		if i >= maxSourceFiles || totalBytes >= maxSourceBytes {
			break
		}
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		remaining := maxSourceBytes - totalBytes
		if len(data) > remaining {
			data = data[:remaining]
		}
		totalBytes += len(data)
		addTo(string(data))
	}
}
