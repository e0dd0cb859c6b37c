package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elisa-build/elisa/internal/config"
)

// handleHealth live-checks the LLM credential and dispatch wiring on
// every call (spec.md §6 "Live-checks env on each call").
func (s *Server) handleHealth(c *gin.Context) {
	keyStatus := s.cfg.CheckAPIKey()

	status := "ready"
	var apiKeyError string
	switch keyStatus {
	case config.APIKeyMissing:
		status = "offline"
		apiKeyError = "OPENAI_API_KEY is not set"
	case config.APIKeyInvalid:
		status = "degraded"
		apiKeyError = "OPENAI_API_KEY does not look like a valid key"
	}

	resp := gin.H{
		"status":   status,
		"apiKey":   keyStatus,
		"agentSdk": s.orch.AgentSDKStatus(),
	}
	if apiKeyError != "" {
		resp["apiKeyError"] = apiKeyError
	}
	c.JSON(http.StatusOK, resp)
}
