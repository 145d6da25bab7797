package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	opTimeout = 5 * time.Second
)

// Client is one authenticated chat connection. Its identity is fixed at
// handshake time; re-authentication mid-connection is not supported.
type Client struct {
	hub  *Hub
	gate *Gate
	conn *websocket.Conn
	send chan []byte

	// done is closed by the hub, and only by the hub, when it drops this
	// client. send stays open so concurrent sendDirect calls cannot panic.
	done chan struct{}

	userID   string
	nickname string
	role     string

	limiter *connLimiter
}

type messagePayload struct {
	Content string `json:"content"`
}

type deletePayload struct {
	MessageID string `json:"message_id"`
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		slog.Info("user disconnected from chat", "user_id", c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("unexpected websocket close", "user_id", c.userID, "error", err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.sendError("invalid message format")
			continue
		}

		c.handleEvent(event)
	}
}

func (c *Client) handleEvent(event Event) {
	switch event.Type {
	case eventMessage:
		c.handleChatMessage(event)
	case eventDeleteMessage:
		c.handleDeleteMessage(event)
	case eventTyping:
		c.hub.BroadcastExcept(c, eventUserTyping, map[string]any{"nickname": c.nickname})
	default:
		c.sendError("unknown event type")
	}
}

func (c *Client) handleChatMessage(event Event) {
	if !c.limiter.allow() {
		c.sendError("Rate limit exceeded. Please slow down.")
		return
	}

	var payload messagePayload
	if !decodePayload(event.Payload, &payload) {
		c.sendError("invalid message payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	message, err := c.gate.chat.SaveMessage(ctx, c.userID, c.nickname, payload.Content)
	if err != nil {
		slog.Error("failed to save chat message", "user_id", c.userID, "error", err)
		c.sendError(userFacingError(err, "Failed to send message"))
		return
	}

	c.hub.Broadcast(eventMessage, message)
}

func (c *Client) handleDeleteMessage(event Event) {
	var payload deletePayload
	if !decodePayload(event.Payload, &payload) {
		c.sendError("invalid message payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := c.gate.chat.DeleteMessage(ctx, payload.MessageID, c.userID, c.role); err != nil {
		c.sendError(userFacingError(err, "Failed to delete message"))
		return
	}

	c.hub.Broadcast(eventMessageDeleted, map[string]any{"id": payload.MessageID})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendDirect queues a frame for this client only. Frames for a dropped or
// backed-up client are discarded.
func (c *Client) sendDirect(eventType string, payload any) {
	data := marshalEvent(eventType, payload)
	if data == nil {
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(message string) {
	c.sendDirect(eventError, map[string]any{"message": message})
}

func decodePayload(raw any, target any) bool {
	data, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, target) == nil
}
