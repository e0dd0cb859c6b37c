// Command elisad runs the ELISA orchestrator process: it loads
// configuration, wires the shared dependencies every session's
// pipeline is built from, mints a bearer token for the dashboard, and
// serves the HTTP/WebSocket API until interrupted. Grounded on
// codeready-toolchain-tarsy/cmd/tarsy/main.go's bootstrap shape
// (flag-or-env config path, ordered "initialize X, log a checkmark"
// sequence, gin router, graceful shutdown).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elisa-build/elisa/internal/api"
	"github.com/elisa-build/elisa/internal/config"
	"github.com/elisa-build/elisa/internal/controller"
	"github.com/elisa-build/elisa/internal/deploy"
	"github.com/elisa-build/elisa/internal/executor"
	"github.com/elisa-build/elisa/internal/judge"
	"github.com/elisa-build/elisa/internal/llmclient"
	"github.com/elisa-build/elisa/internal/memory"
	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/sessionstore"
	"github.com/elisa-build/elisa/internal/tokens"
	"github.com/elisa-build/elisa/internal/versionstore"
)

// tokenTTL is how long the operator's bearer token is valid before the
// process must be restarted to mint a new one — generous, since this
// is a single-operator workshop tool, not a multi-tenant service.
const tokenTTL = 7 * 24 * time.Hour

// defaultRates is the fallback per-model price table used when no
// pricing override is configured; unknown models accrue zero cost
// (tokens.Tracker's documented behavior) rather than failing the run.
func defaultRates() map[string]tokens.Rates {
	return map[string]tokens.Rates{
		"gpt-5.2": {InputPerMillion: 3, CachedPerMillion: 0.75, OutputPerMillion: 15, ReasoningPerMillion: 15},
		"gpt-4.1": {InputPerMillion: 2, CachedPerMillion: 0.5, OutputPerMillion: 8, ReasoningPerMillion: 8},
	}
}

// adaptJudge bridges judge.Score (field-for-field identical input
// shape) to the controller.Judge interface without internal/controller
// importing internal/judge directly — see controller.go's JudgeInput doc.
func adaptJudge(in controller.JudgeInput) models.JudgeResult {
	return judge.Score(judge.Input{
		Spec:          in.Spec,
		Tasks:         in.Tasks,
		Commits:       in.Commits,
		Tests:         in.Tests,
		WorkspaceRoot: in.WorkspaceRoot,
		Threshold:     in.Threshold,
	})
}

func main() {
	envFile := flag.String("env-file", getenvOr("ELISA_ENV_FILE", ""), "optional .env file path")
	flag.Parse()
	_ = envFile // config.Load() itself best-effort loads ./.env; an explicit path is a future enhancement hook.

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	model := llmclient.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.DispatchTimeout).
		WithProxyHeaders(cfg.OpenAIWorkshopCode, cfg.OpenAIStudentID)

	memStore, err := memory.New(cfg.MemoryPath, cfg.MemoryMaxRecords)
	if err != nil {
		log.Fatalf("open build memory: %v", err)
	}
	slog.Info("build memory loaded", "path", cfg.MemoryPath)

	vstore := versionstore.NewGitVersionStore()

	store := sessionstore.New(cfg.SessionGracePeriod)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go store.RunPruner(ctx, cfg.SessionPruneTick)

	deps := api.SharedDeps{
		Config:       cfg,
		Model:        model,
		PlannerModel: model,
		VStore:       vstore,
		Memory:       memStore,
		Judge:        controller.JudgeFunc(adaptJudge),
		Rates:        defaultRates(),
		Flasher:      deploy.StubFlasher{},
		Teaching:     executor.StubTeaching{},
	}

	orch := api.NewOrchestrator(deps, store)

	secret := []byte(cfg.BearerToken)
	if len(secret) == 0 {
		secret = randomSecret()
	}
	token, err := api.IssueToken(secret, tokenTTL)
	if err != nil {
		log.Fatalf("issue bearer token: %v", err)
	}
	log.Printf("ELISA operator token (valid %s): %s", tokenTTL, token)

	srv := api.NewServer(cfg, orch, secret)

	go func() {
		slog.Info("elisad listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	store.Stop()
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// randomSecret generates a process-lifetime-only bearer signing
// secret when ELISA_BEARER_TOKEN isn't set — the operator still needs
// the printed token to authenticate, but nothing persists it across
// restarts.
func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("generate bearer secret: %v", err)
	}
	encoded := make([]byte, hex.EncodedLen(len(buf)))
	hex.Encode(encoded, buf)
	return encoded
}
