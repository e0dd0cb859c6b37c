package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSessionCreateReturnsID(t *testing.T) {
	s, token := authedServer(t)
	root := t.TempDir()

	rec := doJSON(t, s, token, http.MethodPost, "/api/session", map[string]any{
		"spec":           map[string]any{"goal": "build a thing"},
		"workspace_path": root,
		"restart_mode":   "clean",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["session_id"])
}

func TestHandleSessionCreateRequiresSpec(t *testing.T) {
	s, token := authedServer(t)
	rec := doJSON(t, s, token, http.MethodPost, "/api/session", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSessionCancelUnknownIDIs404(t *testing.T) {
	s, token := authedServer(t)
	rec := doJSON(t, s, token, http.MethodPost, "/api/session/does-not-exist/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSessionCancelKnownSessionSucceeds(t *testing.T) {
	s, token := authedServer(t)
	root := t.TempDir()

	rec := doJSON(t, s, token, http.MethodPost, "/api/session", map[string]any{
		"spec":           map[string]any{"goal": "build a thing"},
		"workspace_path": root,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id := body["session_id"].(string)

	rec = doJSON(t, s, token, http.MethodPost, "/api/session/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleSessionGateNoGatePendingIsConflict(t *testing.T) {
	s, token := authedServer(t)
	root := t.TempDir()

	rec := doJSON(t, s, token, http.MethodPost, "/api/session", map[string]any{
		"spec":           map[string]any{"goal": "build a thing"},
		"workspace_path": root,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	id := body["session_id"].(string)

	rec = doJSON(t, s, token, http.MethodPost, "/api/session/"+id+"/gate", map[string]any{"approved": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSessionAnswerRequiresTaskID(t *testing.T) {
	s, token := authedServer(t)
	rec := doJSON(t, s, token, http.MethodPost, "/api/session/some-id/answer", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
