package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elisa-build/elisa/internal/models"
)

// FormatManifest renders the "FILES ALREADY IN WORKSPACE" section from
// relative paths under W/src and W/tests.
func FormatManifest(srcFiles, testFiles []string) string {
	var sb strings.Builder
	sb.WriteString("## FILES ALREADY IN WORKSPACE\n\n")
	if len(srcFiles) == 0 && len(testFiles) == 0 {
		sb.WriteString("(workspace is empty)\n")
		return sb.String()
	}
	all := append(append([]string{}, srcFiles...), testFiles...)
	sort.Strings(all)
	for _, f := range all {
		sb.WriteString("- ")
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatDigest renders the structural digest section. Callers only
// invoke this when at least one source file exists — the assembler
// enforces ordering (after the manifest), not this function.
func FormatDigest(entries []DigestEntry) string {
	var sb strings.Builder
	sb.WriteString("## STRUCTURAL DIGEST\n\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("### %s\n", e.File))
		for _, sig := range e.Signatures {
			sb.WriteString("- ")
			sb.WriteString(sig)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// DigestEntry is one source file's extracted function/class signatures.
type DigestEntry struct {
	File       string
	Signatures []string
}

// FormatBehavioralTests renders the tester-only "Behavioral Tests to
// Verify" section.
func FormatBehavioralTests(tests []models.BehavioralTest) string {
	var sb strings.Builder
	sb.WriteString("## Behavioral Tests to Verify\n\n")
	for _, bt := range tests {
		sb.WriteString(fmt.Sprintf("- When %s, then %s\n", bt.When, bt.Then))
	}
	return sb.String()
}

// FormatRetryHeader renders the retry header for attempt >= 1. attempt 0
// (first attempt) has no header — callers must skip this for attempt==0.
func FormatRetryHeader(attempt int) string {
	return fmt.Sprintf(
		"## Retry Attempt %d\n\nThe previous attempt (#%d) did not complete the task successfully. Skip orientation and go straight to implementation.\n",
		attempt, attempt,
	)
}

// FormatAcceptanceCriteria renders a bullet list of acceptance criteria.
func FormatAcceptanceCriteria(criteria []string) string {
	if len(criteria) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Acceptance Criteria\n\n")
	for _, c := range criteria {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatPredecessorContext wraps the context manager's predecessor
// summary text block, or returns "" when there is none.
func FormatPredecessorContext(context string) string {
	if strings.TrimSpace(context) == "" {
		return ""
	}
	return "## Context From Prior Tasks\n\n" + context
}
