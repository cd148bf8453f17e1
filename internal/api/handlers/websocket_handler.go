package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/cityhop/ride-hailing/pkg/logger"
	"github.com/cityhop/ride-hailing/pkg/websocket"
)

// HandleWebSocket handles GET /v1/ws. Runs behind Authenticate, so the
// connection is bound to the verified identity rather than query params.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	ident, ok := h.caller(c)
	if !ok {
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, ident.UserID.String(), string(ident.Role), h.Logger)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.Monitor.RecordActiveConnections(h.Hub.ActiveConnections())
}
