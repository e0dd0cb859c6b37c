// Package contextmgr maintains per-task predecessor-summary context
// (spec.md §4.5): a capped text block injected into each task's prompt,
// plus on-disk mirrors in comms/ and context/. The summaries themselves
// live in memory; the Workspace Manager's stale-metadata cleanup wipes
// the mirror directories before each agent dispatch.
package contextmgr

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// defaultWordBudget matches spec.md §4.5's default of 2000 words.
const defaultWordBudget = 2000

// Manager holds per-task result summaries in memory and mirrors them to
// the workspace's comms/ and context/ files on every recordResult.
type Manager struct {
	mu          sync.Mutex
	wordBudget  int
	commsDir    string
	contextFile string
	summaries   map[string]string // taskID -> summary text
	order       []string          // insertion order, for nugget_context.md rendering
}

// New creates a Manager rooted at the workspace's comms/ directory and
// the context/nugget_context.md file. wordBudget <= 0 uses the default.
func New(commsDir, contextFile string, wordBudget int) *Manager {
	if wordBudget <= 0 {
		wordBudget = defaultWordBudget
	}
	return &Manager{
		wordBudget:  wordBudget,
		commsDir:    commsDir,
		contextFile: contextFile,
		summaries:   make(map[string]string),
	}
}

// RecordResult stores a task's result summary, writes
// comms/<taskId>_summary.md, and atomically rewrites context/nugget_context.md.
func (m *Manager) RecordResult(taskID, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.summaries[taskID]; !seen {
		m.order = append(m.order, taskID)
	}
	m.summaries[taskID] = summary

	commsPath := filepath.Join(m.commsDir, taskID+"_summary.md")
	if err := renameio.WriteFile(commsPath, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write task summary: %w", err)
	}

	var sb strings.Builder
	for _, id := range m.order {
		sb.WriteString("## ")
		sb.WriteString(id)
		sb.WriteString("\n\n")
		sb.WriteString(m.summaries[id])
		sb.WriteString("\n\n")
	}
	if err := renameio.WriteFile(m.contextFile, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("write nugget context: %w", err)
	}
	return nil
}

// GetContextFor assembles the recorded summaries of the given
// predecessors, capped at the configured word budget. predecessors is
// the task's ordered predecessor id list from the plan.
func (m *Manager) GetContextFor(predecessors []string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var blocks []string
	for _, p := range predecessors {
		if s, ok := m.summaries[p]; ok {
			blocks = append(blocks, fmt.Sprintf("### %s\n\n%s", p, s))
		}
	}
	if len(blocks) == 0 {
		return ""
	}
	return capWords(strings.Join(blocks, "\n\n"), m.wordBudget)
}

// capWords truncates text to at most budget words, appending a marker
// when truncation occurred.
func capWords(text string, budget int) string {
	words := strings.Fields(text)
	if len(words) <= budget {
		return text
	}
	return strings.Join(words[:budget], " ") + "\n\n[context truncated at word budget]"
}
