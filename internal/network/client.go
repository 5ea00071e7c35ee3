package network

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/custodia-rp/custody-server/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.sendBuffer),
	}
}

// ClientAction represents an incoming query from a connected console.
type ClientAction struct {
	Type      string          `json:"type"`       // "QUERY_STATUS", "QUERY_HISTORY"
	SubjectID string          `json:"subject_id"` // Whose custody state to inspect
	Payload   json.RawMessage `json:"payload"`    // Action-specific data
}

// Client object to hold connection status. Added Hub ref to allow unregister.
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	lastActionTime time.Time
}

// Register adds the client to the hub.
func (c *Client) Register() {
	c.hub.register <- c
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		var action ClientAction
		if err := json.Unmarshal(message, &action); err != nil {
			c.hub.logger.Errorf("Failed to parse ClientAction from WebSocket: %v", err)
			continue
		}

		c.handleClientAction(action)
	}
}

func (c *Client) handleClientAction(action ClientAction) {
	// 1. Rate Limiting Check
	if time.Since(c.lastActionTime) < 1*time.Second {
		c.hub.logger.Warn("Rate limit exceeded for client query on " + action.SubjectID)
		return
	}
	c.lastActionTime = time.Now()

	if action.SubjectID == "" {
		c.hub.logger.Warn("ClientAction without subject, ignoring")
		return
	}

	switch action.Type {
	case "QUERY_STATUS":
		c.handleQueryStatus(action.SubjectID)
	case "QUERY_HISTORY":
		c.handleQueryHistory(action.SubjectID)
	default:
		c.hub.logger.Warn("Unknown ClientAction type: " + action.Type)
	}
}

// statusReply is the answer to a QUERY_STATUS action.
type statusReply struct {
	Type               string `json:"type"`
	SubjectID          string `json:"subject_id"`
	InJail             bool   `json:"in_jail"`
	Tracking           bool   `json:"tracking"`
	RemainingMinutes   int    `json:"remaining_minutes"`
	FormattedRemaining string `json:"formatted_remaining"`
	ServedMinutes      int    `json:"served_minutes"`
}

func (c *Client) handleQueryStatus(subjectID string) {
	registry := c.hub.engine.GetRegistry()

	reply := statusReply{
		Type:               "STATUS",
		SubjectID:          subjectID,
		InJail:             registry.IsInJail(subjectID),
		Tracking:           registry.IsTracking(subjectID),
		RemainingMinutes:   registry.GetRemainingTime(subjectID),
		FormattedRemaining: registry.FormatRemainingTime(subjectID),
		ServedMinutes:      registry.GetTimeServed(subjectID),
	}
	c.reply(reply)
	c.hub.logger.Event("CLIENT_QUERY_STATUS", subjectID, "Status served over WebSocket")
}

// historyReply is the answer to a QUERY_HISTORY action.
type historyReply struct {
	Type      string                `json:"type"`
	SubjectID string                `json:"subject_id"`
	Events    []events.CustodyEvent `json:"events"`
}

func (c *Client) handleQueryHistory(subjectID string) {
	history := c.hub.engine.GetEventLog().GetBySubject(subjectID)

	c.reply(historyReply{
		Type:      "HISTORY",
		SubjectID: subjectID,
		Events:    history,
	})
	c.hub.logger.Event("CLIENT_QUERY_HISTORY", subjectID, "History served over WebSocket")
}

// reply serializes a response and queues it on this client's send channel
// only, not the broadcast fan-out.
func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.Errorf("Failed to serialize WebSocket reply: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("Client send buffer full, dropping reply")
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
