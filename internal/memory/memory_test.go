package memory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/models"
)

func TestRecordRunDedupesBySessionID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := New(path, 10)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(models.MemoryRecord{SessionID: "s1", Goal: "first"}))
	require.NoError(t, s.RecordRun(models.MemoryRecord{SessionID: "s1", Goal: "updated"}))

	assert.Len(t, s.records, 1)
	assert.Equal(t, "updated", s.records[0].Goal)
}

func TestRecordRunEvictsOldestOverCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := New(path, 2)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(models.MemoryRecord{SessionID: "s1"}))
	require.NoError(t, s.RecordRun(models.MemoryRecord{SessionID: "s2"}))
	require.NoError(t, s.RecordRun(models.MemoryRecord{SessionID: "s3"}))

	assert.Len(t, s.records, 2)
	assert.Equal(t, "s2", s.records[0].SessionID)
	assert.Equal(t, "s3", s.records[1].SessionID)
}

func TestGetPlannerContextRanksBySimilarity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := New(path, 10)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(models.MemoryRecord{
		SessionID: "close", Keywords: []string{"login", "page", "auth"},
		ProjectType: "web", DeploymentTarget: models.DeploymentWeb,
		Outcome: models.OutcomeAggregate{OverallSuccess: true},
	}))
	require.NoError(t, s.RecordRun(models.MemoryRecord{
		SessionID: "far", Keywords: []string{"robot", "firmware"},
		ProjectType: "esp32", DeploymentTarget: models.DeploymentESP32,
	}))

	spec := &models.Spec{Goal: "login page auth", ProjectType: "web", Deployment: models.Deployment{Target: models.DeploymentWeb}}
	entries := s.GetPlannerContext(spec, 3)

	require.NotEmpty(t, entries)
	assert.Equal(t, "close", entries[0].Record.SessionID)
}

func TestSuggestReusablePatternsExcludesAlreadyPresent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	s, err := New(path, 10)
	require.NoError(t, err)

	require.NoError(t, s.RecordRun(models.MemoryRecord{
		SessionID: "s1", Keywords: []string{"login", "auth"},
		SkillsUsed: []string{"jwt-auth"}, ProjectType: "web",
		Outcome: models.OutcomeAggregate{OverallSuccess: true, TasksCompleted: 3, TasksTotal: 3, JudgeScore: 90},
	}))

	spec := &models.Spec{Goal: "login auth", ProjectType: "web"}
	already := map[string]bool{PatternKey("skill", "jwt-auth"): true}

	patterns := s.SuggestReusablePatterns(spec, already, 4)
	assert.Empty(t, patterns)

	patterns = s.SuggestReusablePatterns(spec, nil, 4)
	require.NotEmpty(t, patterns)
	assert.Equal(t, "jwt-auth", patterns[0].Name)
}
