// Package prompt assembles system and user prompts for an agent
// dispatch (spec.md §4.6). The Builder is stateless: every Build method
// is a pure function of its explicit arguments, mirroring the
// teacher's PromptBuilder (pkg/agent/prompt/builder.go), which is
// documented as "Stateless — all state comes from parameters."
package prompt

import (
	"fmt"
	"strings"

	"github.com/elisa-build/elisa/internal/models"
)

// WorkspaceSnapshot is the subset of workspace state the assembler
// needs: file manifests and an optional structural digest.
type WorkspaceSnapshot struct {
	SrcFiles  []string
	TestFiles []string
	Digest    []DigestEntry // empty when no source files exist yet
	HasAnySrc bool
}

// DispatchInputs is everything BuildPrompts needs to assemble one
// dispatch's system and user prompts.
type DispatchInputs struct {
	Task               *models.Task
	Agent              *models.Agent
	Workflow           models.Workflow
	Workspace          WorkspaceSnapshot
	PredecessorContext string
	Attempt            int // 0 = first attempt
	MaxTurns           int
}

// Builder assembles prompts. It holds no mutable state.
type Builder struct{}

// New constructs a Builder.
func New() *Builder { return &Builder{} }

// BuildSystemPrompt renders the role template, agent identity, turn
// efficiency section, and thinking-steps section.
func (b *Builder) BuildSystemPrompt(in DispatchInputs) string {
	role := string(in.Agent.Role)
	body := fmt.Sprintf(roleTemplate(role), in.Agent.Name, in.Agent.Persona)

	var sb strings.Builder
	sb.WriteString(body)
	sb.WriteString("\n\n")
	sb.WriteString(turnEfficiencySection(role, in.MaxTurns))
	sb.WriteString("\n\n")
	sb.WriteString(thinkingSteps)
	return sb.String()
}

// BuildUserPrompt renders task identity, acceptance criteria,
// predecessor context, manifest, digest (only if source files exist),
// behavioral tests (tester only), and the retry header (attempt >= 1).
// Ordering is significant: manifest must precede digest, per spec.md §4.6.
func (b *Builder) BuildUserPrompt(in DispatchInputs) string {
	var sb strings.Builder

	if in.Attempt >= 1 {
		sb.WriteString(FormatRetryHeader(in.Attempt))
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("## Task: %s\n\n%s\n\n", in.Task.Name, in.Task.Description))

	if ac := FormatAcceptanceCriteria(in.Task.AcceptanceCriteria); ac != "" {
		sb.WriteString(ac)
		sb.WriteString("\n")
	}

	if pc := FormatPredecessorContext(in.PredecessorContext); pc != "" {
		sb.WriteString(pc)
		sb.WriteString("\n\n")
	}

	sb.WriteString(FormatManifest(in.Workspace.SrcFiles, in.Workspace.TestFiles))
	sb.WriteString("\n")

	if in.Workspace.HasAnySrc && len(in.Workspace.Digest) > 0 {
		sb.WriteString(FormatDigest(in.Workspace.Digest))
		sb.WriteString("\n")
	}

	if in.Agent.Role == models.RoleTester && len(in.Workflow.BehavioralTests) > 0 {
		sb.WriteString(FormatBehavioralTests(in.Workflow.BehavioralTests))
		sb.WriteString("\n")
	}

	return sb.String()
}

// BuildPrompts returns both prompts for one dispatch.
func (b *Builder) BuildPrompts(in DispatchInputs) (system, user string) {
	return b.BuildSystemPrompt(in), b.BuildUserPrompt(in)
}
