package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elisa-build/elisa/internal/models"
	"github.com/elisa-build/elisa/internal/workspace"
)

type workspaceSaveRequest struct {
	WorkspacePath string          `json:"workspace_path"`
	WorkspaceJSON json.RawMessage `json:"workspace_json"`
	Skills        json.RawMessage `json:"skills"`
	Rules         json.RawMessage `json:"rules"`
	Portals       json.RawMessage `json:"portals"`
}

func (s *Server) handleWorkspaceSave(c *gin.Context) {
	var req workspaceSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WorkspacePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_path is required"})
		return
	}

	mgr := workspace.NewManager(nil)
	if err := mgr.Provision(req.WorkspacePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	bundle := workspace.DesignBundle{
		Workspace: workspace.DesignDocument(req.WorkspaceJSON),
		Skills:    workspace.DesignDocument(req.Skills),
		Rules:     workspace.DesignDocument(req.Rules),
		Portals:   workspace.DesignDocument(req.Portals),
	}
	if err := workspace.SaveDesignBundle(req.WorkspacePath, bundle); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

type workspaceLoadRequest struct {
	WorkspacePath string `json:"workspace_path"`
}

func (s *Server) handleWorkspaceLoad(c *gin.Context) {
	var req workspaceLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WorkspacePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_path is required"})
		return
	}

	bundle, err := workspace.LoadDesignBundle(req.WorkspacePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"workspace": bundle.Workspace,
		"skills":    bundle.Skills,
		"rules":     bundle.Rules,
		"portals":   bundle.Portals,
	})
}

func (s *Server) handleWorkspaceInspect(c *gin.Context) {
	var req workspaceLoadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WorkspacePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_path is required"})
		return
	}

	insp, err := workspace.Inspect(req.WorkspacePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, insp)
}

type workspaceResetRequest struct {
	WorkspacePath string `json:"workspace_path"`
	Mode          string `json:"mode"`
}

// handleWorkspaceReset implements the single supported reset mode,
// "clean_generated" (spec.md §6 "Other modes → 400").
func (s *Server) handleWorkspaceReset(c *gin.Context) {
	var req workspaceResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WorkspacePath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace_path is required"})
		return
	}
	if req.Mode != "clean_generated" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}

	mgr := workspace.NewManager(nil)
	removed, err := mgr.Reset(req.WorkspacePath, models.RestartModeClean)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset", "mode": req.Mode, "removed": removed})
}
