package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cityhop/ride-hailing/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client represents a single websocket connection
type Client struct {
	ID     string
	UserID string
	Role   string
	Conn   *websocket.Conn
	Send   chan []byte

	hub   *Hub
	rides map[string]bool
	mu    sync.RWMutex
	log   *logger.Logger
}

// inbound control messages from the client
type clientMessage struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id,omitempty"`
}

// NewClient creates a client for an authenticated connection
func NewClient(hub *Hub, conn *websocket.Conn, userID, role string, log *logger.Logger) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, 64),
		hub:    hub,
		rides:  make(map[string]bool),
		log:    log,
	}
}

// SubscribeToRide marks the client as interested in a ride's events
func (c *Client) SubscribeToRide(rideID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rides[rideID] = true
}

// UnsubscribeFromRide removes a ride subscription
func (c *Client) UnsubscribeFromRide(rideID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rides, rideID)
}

// IsSubscribedToRide reports whether the client follows a ride
func (c *Client) IsSubscribedToRide(rideID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rides[rideID]
}

// ReadPump reads control messages from the connection until it closes
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected websocket close",
					logger.String("client_id", c.ID),
					logger.Err(err),
				)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "subscribe_ride":
			if msg.RideID != "" {
				c.SubscribeToRide(msg.RideID)
			}
		case "unsubscribe_ride":
			if msg.RideID != "" {
				c.UnsubscribeFromRide(msg.RideID)
			}
		}
	}
}

// WritePump pushes queued messages and keepalive pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
