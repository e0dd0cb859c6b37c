package contextmgr

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	commsDir := filepath.Join(dir, "comms")
	require.NoError(t, os.MkdirAll(commsDir, 0o755))
	contextFile := filepath.Join(dir, "nugget_context.md")
	return New(commsDir, contextFile, 0)
}

func TestRecordResultWritesCommsFile(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.RecordResult("t1", "did the thing"))

	content, err := os.ReadFile(filepath.Join(m.commsDir, "t1_summary.md"))
	require.NoError(t, err)
	assert.Equal(t, "did the thing", string(content))

	nugget, err := os.ReadFile(m.contextFile)
	require.NoError(t, err)
	assert.Contains(t, string(nugget), "did the thing")
}

func TestGetContextForOnlyIncludesKnownPredecessors(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.RecordResult("a", "result a"))
	require.NoError(t, m.RecordResult("b", "result b"))

	ctx := m.GetContextFor([]string{"a", "ghost", "b"})
	assert.Contains(t, ctx, "result a")
	assert.Contains(t, ctx, "result b")
	assert.NotContains(t, ctx, "ghost")
}

func TestGetContextForEmptyWhenNoPredecessors(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, "", m.GetContextFor(nil))
}

func TestGetContextForRespectsWordBudget(t *testing.T) {
	dir := t.TempDir()
	commsDir := filepath.Join(dir, "comms")
	require.NoError(t, os.MkdirAll(commsDir, 0o755))
	m := New(commsDir, filepath.Join(dir, "nugget_context.md"), 3)

	require.NoError(t, m.RecordResult("a", "one two three four five"))
	ctx := m.GetContextFor([]string{"a"})
	assert.True(t, strings.Contains(ctx, "[context truncated at word budget]"))
}
