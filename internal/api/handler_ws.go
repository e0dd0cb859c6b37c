package api

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/elisa-build/elisa/internal/events"
)

// handleSessionWS upgrades /ws/session/:id and streams that session's
// event bus until the client disconnects or the bus closes, per
// spec.md §6's "Live event channel". Grounded on
// codeready-toolchain-tarsy/pkg/events/manager.go's ConnectionManager
// read/write loop.
func (s *Server) handleSessionWS(c *gin.Context) {
	id := c.Param("id")
	bus := s.orch.Bus(id)
	if bus == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := c.Request.Context()

	started, _ := json.Marshal(events.Event{
		Type:      events.TypeSessionStarted,
		SessionID: id,
		Payload:   events.PayloadSessionStarted{SessionID: id},
	})
	if err := conn.Write(ctx, websocket.MessageText, started); err != nil {
		return
	}

	sub := bus.Subscribe(256)
	defer bus.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case evt, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "session complete")
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		}
	}
}
