package websocket

import (
	"encoding/json"
	"log/slog"
)

// Event is the wire envelope for every chat frame in both directions.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

const (
	eventHistory        = "chat:history"
	eventMessage        = "chat:message"
	eventMessageDeleted = "chat:message-deleted"
	eventDeleteMessage  = "chat:delete-message"
	eventTyping         = "chat:typing"
	eventUserTyping     = "chat:user-typing"
	eventUserJoined     = "chat:user-joined"
	eventUserLeft       = "chat:user-left"
	eventError          = "chat:error"
)

type outbound struct {
	data   []byte
	except *Client
}

// Hub owns the client set. It never closes a client's send channel: the
// connection's read goroutine writes to it too. Dropping a client means
// removing it from the set and closing its done channel, which tells
// writePump to finish.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	broadcast chan outbound
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 64),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.sendLocked(outbound{
				data:   marshalEvent(eventUserJoined, map[string]any{"nickname": client.nickname}),
				except: client,
			})
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.sendLocked(outbound{
					data: marshalEvent(eventUserLeft, map[string]any{"nickname": client.nickname}),
				})
			}
		case msg := <-h.broadcast:
			h.sendLocked(msg)
		}
	}
}

// Broadcast delivers an event to every connected client.
func (h *Hub) Broadcast(eventType string, payload any) {
	h.broadcast <- outbound{data: marshalEvent(eventType, payload)}
}

// BroadcastExcept delivers an event to every client but the sender.
func (h *Hub) BroadcastExcept(sender *Client, eventType string, payload any) {
	h.broadcast <- outbound{data: marshalEvent(eventType, payload), except: sender}
}

func (h *Hub) sendLocked(msg outbound) {
	if msg.data == nil {
		return
	}

	for client := range h.clients {
		if client == msg.except {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			// Slow consumer, drop the connection.
			h.drop(client)
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.done)
}

func marshalEvent(eventType string, payload any) []byte {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		slog.Error("failed to marshal chat event", "type", eventType, "error", err)
		return nil
	}
	return data
}
