package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elisa-build/elisa/internal/config"
	"github.com/elisa-build/elisa/internal/events"
	"github.com/elisa-build/elisa/internal/models"
)

func newMinimalSpec() *models.Spec {
	return models.NewSpecFromMap(map[string]any{"goal": "build a thing"})
}

func TestSessionWSRejectsUnknownSession(t *testing.T) {
	cfg := &config.Config{}
	s := newTestServer(t, cfg)
	token, err := IssueToken([]byte("test-secret"), time.Minute)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Engine())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session/unknown?token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = websocket.Dial(ctx, url, nil)
	assert.Error(t, err)
}

func TestSessionWSStreamsSessionStarted(t *testing.T) {
	cfg := &config.Config{}
	s := newTestServer(t, cfg)
	token, err := IssueToken([]byte("test-secret"), time.Minute)
	require.NoError(t, err)

	root := t.TempDir()
	id, err := s.orch.StartSession(
		newMinimalSpec(),
		root,
		models.RestartModeClean,
		true,
	)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Engine())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session/" + id + "?token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var evt events.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, events.TypeSessionStarted, evt.Type)
	assert.Equal(t, id, evt.SessionID)
}
