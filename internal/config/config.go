// Package config loads and validates ELISA's environment-variable
// surface into an immutable Config, following the teacher's pattern of
// a single umbrella Config object with typed accessors and documented
// defaults (see codeready-toolchain/tarsy's pkg/config.Config).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the umbrella configuration object for the process.
type Config struct {
	// LLM
	OpenAIAPIKey             string
	OpenAIModel              string
	OpenAIBaseURL            string
	OpenAIWorkshopCode       string
	OpenAIStudentID          string
	OutputLimitFallbackModel string

	// Judge
	JudgeMinScore int

	// Build memory
	MemoryPath       string
	MemoryMaxRecords int

	// Session store
	SessionMaxAge      time.Duration
	SessionPruneTick   time.Duration
	SessionGracePeriod time.Duration

	// DAG scheduler
	SchedulerConcurrency int

	// Executor retry ladder
	MaxTurnsDefault        int
	MaxTurnsRetryIncrement int
	RetryLimit             int
	CompletionTokensStart  int
	CompletionTokensStep   int
	CompletionTokensCap    int

	// HTTP API
	HTTPAddr     string
	BearerToken  string
	DevMode      bool // enables POST /api/internal/config; disabled when static assets are served
	DashboardDir string

	// Tool sandbox
	BashTimeout time.Duration

	// Dispatch
	DispatchTimeout time.Duration
}

// Load reads environment variables (optionally from a .env file) and
// returns a validated Config. Never fails construction for unknown or
// missing optional fields — unset optional values fall back to the
// documented defaults in spec.md §6.
func Load() (*Config, error) {
	// .env is best-effort; its absence is normal in production.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	cfg := &Config{
		OpenAIAPIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:              envOr("OPENAI_MODEL", "gpt-5.2"),
		OpenAIBaseURL:            os.Getenv("OPENAI_BASE_URL"),
		OpenAIWorkshopCode:       os.Getenv("OPENAI_WORKSHOP_CODE"),
		OpenAIStudentID:          os.Getenv("OPENAI_STUDENT_ID"),
		OutputLimitFallbackModel: envOr("OUTPUT_LIMIT_FALLBACK_MODEL", "gpt-4.1"),

		MemoryPath:       envOr("MEMORY_PATH", "./.elisa-memory.json"),
		MemoryMaxRecords: 200,

		SessionMaxAge:      time.Hour,
		SessionPruneTick:   10 * time.Minute,
		SessionGracePeriod: 5 * time.Minute,

		SchedulerConcurrency: 3,

		MaxTurnsDefault:        25,
		MaxTurnsRetryIncrement: 10,
		RetryLimit:             2,
		CompletionTokensStart:  4000,
		CompletionTokensStep:   4000,
		CompletionTokensCap:    12000,

		HTTPAddr:     envOr("ELISA_HTTP_ADDR", ":8080"),
		BearerToken:  os.Getenv("ELISA_BEARER_TOKEN"),
		DevMode:      os.Getenv("ELISA_DEV_MODE") == "true",
		DashboardDir: os.Getenv("ELISA_DASHBOARD_DIR"),

		BashTimeout:     30 * time.Second,
		DispatchTimeout: 300 * time.Second,
	}

	if v := os.Getenv("JUDGE_MIN_SCORE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("JUDGE_MIN_SCORE must be an integer: %w", err)
		}
		if n < 0 || n > 100 {
			return nil, fmt.Errorf("JUDGE_MIN_SCORE must be in [0,100], got %d", n)
		}
		cfg.JudgeMinScore = n
	} else {
		cfg.JudgeMinScore = 70
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// HealthAPIKeyStatus reports the liveness of the LLM credential, as
// surfaced by GET /api/health.
type HealthAPIKeyStatus string

const (
	APIKeyValid   HealthAPIKeyStatus = "valid"
	APIKeyInvalid HealthAPIKeyStatus = "invalid"
	APIKeyMissing HealthAPIKeyStatus = "missing"
)

// CheckAPIKey live-checks the env for credential presence. This is a
// cheap presence/shape check, not a network round-trip to the vendor —
// the vendor SDK itself is out of scope per spec.md §1.
func (c *Config) CheckAPIKey() HealthAPIKeyStatus {
	if c.OpenAIAPIKey == "" {
		return APIKeyMissing
	}
	if len(c.OpenAIAPIKey) < 8 {
		return APIKeyInvalid
	}
	return APIKeyValid
}
