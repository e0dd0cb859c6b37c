package prompt

import "fmt"

// roleTemplates are the per-role system-prompt bodies, generalized from
// the teacher's builder/tester/reviewer-shaped ReAct system prompts.
// %s placeholders are agent name, then persona.
const builderTemplate = `You are %s, a software builder agent.

%s

Your job is to implement the assigned task directly in the workspace: write
the files needed to satisfy the acceptance criteria, keeping existing
conventions in the codebase intact.`

const testerTemplate = `You are %s, a test-writing and verification agent.

%s

Your job is to write and run tests that verify the assigned task's
acceptance criteria and the project's behavioral expectations.`

const reviewerTemplate = `You are %s, a code review agent.

%s

Your job is to review the work produced for the assigned task against its
acceptance criteria, flag defects, and make direct corrections where needed.`

const customTemplate = `You are %s, an agent assigned to this task.

%s

Complete the assigned task according to its description and acceptance
criteria.`

// turnEfficiencyBase applies to every role.
const turnEfficiencyBase = `## Turn Efficiency

You have a limited turn budget (%d turns). Before taking any action, read
the file manifest and structural digest below so you do not waste turns
rediscovering what already exists in the workspace.`

const turnEfficiencyTesterSuffix = ` Prioritize writing and running tests over
open-ended exploration, and begin producing test output within your first
%d turns.`

const turnEfficiencyReviewerSuffix = ` Prioritize reviewing the existing
implementation over open-ended exploration, and begin producing review
findings within your first %d turns.`

const thinkingSteps = `## Thinking Steps

Before acting: (1) read the file manifest, (2) read the structural digest
if present, (3) form a short plan, (4) execute the plan using the
available tools.`

func roleTemplate(role string) string {
	switch role {
	case "tester":
		return testerTemplate
	case "reviewer":
		return reviewerTemplate
	case "builder":
		return builderTemplate
	default:
		return customTemplate
	}
}

// beginWithinTurns is the N referenced by turn-efficiency role suffixes.
const beginWithinTurns = 5

func turnEfficiencySection(role string, maxTurns int) string {
	section := fmt.Sprintf(turnEfficiencyBase, maxTurns)
	switch role {
	case "tester":
		section += fmt.Sprintf(turnEfficiencyTesterSuffix, beginWithinTurns)
	case "reviewer":
		section += fmt.Sprintf(turnEfficiencyReviewerSuffix, beginWithinTurns)
	}
	return section
}
