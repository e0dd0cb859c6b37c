package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

type internalConfigRequest struct {
	APIKey string `json:"apiKey"`
}

// handleInternalConfig lets a dev-mode dashboard hand the operator's
// OpenAI key to the running process without a restart. Only registered
// when cfg.DevMode is set, and never when static assets are served
// (spec.md §6 "absent when static assets are served").
func (s *Server) handleInternalConfig(c *gin.Context) {
	var req internalConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey is required"})
		return
	}

	if err := os.Setenv("OPENAI_API_KEY", req.APIKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.cfg.OpenAIAPIKey = req.APIKey

	c.JSON(http.StatusOK, gin.H{"apiKey": string(s.cfg.CheckAPIKey())})
}
