package api

import (
	"context"

	"github.com/elisa-build/elisa/internal/config"
	"github.com/elisa-build/elisa/internal/controller"
	"github.com/elisa-build/elisa/internal/deploy"
	"github.com/elisa-build/elisa/internal/dispatcher"
	"github.com/elisa-build/elisa/internal/executor"
	"github.com/elisa-build/elisa/internal/memory"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/sessionstore"
	"github.com/elisa-build/elisa/internal/versionstore"
)

// stubModel is a no-op LanguageModel for handler tests that only
// exercise routing/auth/shape, never real dispatch turns.
type stubModel struct{}

func (stubModel) Generate(ctx context.Context, in dispatcher.GenerateInput) (<-chan dispatcher.Chunk, error) {
	ch := make(chan dispatcher.Chunk)
	close(ch)
	return ch, nil
}

// stubVersionStore is a no-op VersionStore for handler tests.
type stubVersionStore struct{}

func (stubVersionStore) InitRepo(ctx context.Context, path, goal string) error { return nil }
func (stubVersionStore) Commit(ctx context.Context, path, message, agentName, taskID string) (versionstore.CommitRecord, bool, error) {
	return versionstore.CommitRecord{}, false, nil
}
func (stubVersionStore) DiffSummary(ctx context.Context, path, sha string) ([]string, error) {
	return nil, nil
}
func (stubVersionStore) Status(ctx context.Context, path string) (bool, error) { return false, nil }

func newTestServer(t testingT, cfg *config.Config) *Server {
	t.Helper()

	memStore, err := memory.New(t.TempDir()+"/memory.json", 50)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}

	store := sessionstore.New(cfg.SessionGracePeriod)
	deps := SharedDeps{
		Config:   cfg,
		Model:    stubModel{},
		VStore:   stubVersionStore{},
		Memory:   memStore,
		Judge:    nilJudge{},
		Teaching: executor.StubTeaching{},
		Flasher:  deploy.StubFlasher{},
	}
	orch := NewOrchestrator(deps, store)
	return NewServer(cfg, orch, []byte("test-secret"))
}

// nilJudge always scores above any reasonable threshold, for handler
// tests that don't exercise the judge phase directly.
type nilJudge struct{}

func (nilJudge) Score(in controller.JudgeInput) models.JudgeResult {
	return models.JudgeResult{Score: 100, Passed: true, RawPassed: true}
}

// testingT narrows *testing.T to what this helper needs, so it can
// live in a _test.go file without importing "testing" at package scope
// oddities across files.
type testingT interface {
	Helper()
	TempDir() string
	Fatalf(format string, args ...any)
}
