package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/elisa-build/elisa/internal/models"
)

// statusFor maps an Orchestrator error to an HTTP status: a missing
// session is a 404, anything else (e.g. "no gate is pending") is a
// 409 — the session exists but isn't in a state that accepts the
// request.
func statusFor(err error) int {
	if errors.Is(err, ErrSessionNotFound) {
		return http.StatusNotFound
	}
	return http.StatusConflict
}

type sessionCreateRequest struct {
	Spec          map[string]any `json:"spec"`
	WorkspacePath string         `json:"workspace_path"`
	RestartMode   string         `json:"restart_mode"`
}

func (s *Server) handleSessionCreate(c *gin.Context) {
	var req sessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Spec == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "spec is required"})
		return
	}

	mode := models.RestartMode(req.RestartMode)
	if mode != models.RestartModeContinue && mode != models.RestartModeClean {
		mode = models.RestartModeClean
	}

	workspacePath := req.WorkspacePath
	userWorkspace := workspacePath != ""
	if workspacePath == "" {
		workspacePath = defaultWorkspacePath()
	}

	spec := models.NewSpecFromMap(req.Spec)
	id, err := s.orch.StartSession(spec, workspacePath, mode, userWorkspace)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id})
}

func (s *Server) handleSessionCancel(c *gin.Context) {
	id := c.Param("id")
	if err := s.orch.Cancel(id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

type sessionGateRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback"`
}

func (s *Server) handleSessionGate(c *gin.Context) {
	id := c.Param("id")
	var req sessionGateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.Gate(id, req.Approved, req.Feedback); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

type sessionAnswerRequest struct {
	TaskID  string         `json:"task_id"`
	Answers map[string]any `json:"answers"`
}

func (s *Server) handleSessionAnswer(c *gin.Context) {
	id := c.Param("id")
	var req sessionAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TaskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task_id is required"})
		return
	}
	if err := s.orch.Answer(id, req.TaskID, req.Answers); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// defaultWorkspacePath is used when the client omits workspace_path,
// per spec.md §6's optional field — ELISA manages the workspace itself
// rather than requiring the caller to pick a directory.
func defaultWorkspacePath() string {
	return ".elisa-workspaces/" + uuid.New().String()
}
