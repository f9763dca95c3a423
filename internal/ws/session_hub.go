package ws

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/events"
)

type sessionNotification struct {
	sessionID string
	payload   []byte
}

// SessionHub pushes status changes to the student attached to a session.
// A newer connection for the same session replaces the older one.
type SessionHub struct {
	register   chan *sessionClient
	unregister chan *sessionClient
	notify     chan sessionNotification
	clients    map[string]*sessionClient
}

func NewSessionHub() *SessionHub {
	return &SessionHub{
		register:   make(chan *sessionClient),
		unregister: make(chan *sessionClient),
		notify:     make(chan sessionNotification, sendBufferSize),
		clients:    make(map[string]*sessionClient),
	}
}

func (h *SessionHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for id, client := range h.clients {
				client.conn.Close()
				delete(h.clients, id)
			}
			return
		case client := <-h.register:
			if existing, ok := h.clients[client.sessionID]; ok {
				existing.conn.Close()
			}
			h.clients[client.sessionID] = client
			if client.hello != nil {
				client.send <- client.hello
			}
		case client := <-h.unregister:
			if stored, ok := h.clients[client.sessionID]; ok && stored == client {
				delete(h.clients, client.sessionID)
			}
		case msg := <-h.notify:
			if client, ok := h.clients[msg.sessionID]; ok {
				select {
				case client.send <- msg.payload:
				default:
					client.conn.Close()
					delete(h.clients, msg.sessionID)
				}
			}
		}
	}
}

// Notify queues e for the session's student. It reports false when the
// queue is full.
func (h *SessionHub) Notify(e events.Event) bool {
	if h == nil {
		return true
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("ws: failed to marshal event")
		return true
	}
	select {
	case h.notify <- sessionNotification{sessionID: e.SessionID, payload: data}:
		return true
	default:
		return false
	}
}

type sessionClient struct {
	hub       *SessionHub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	// hello is the current state, sent first so the client never polls.
	hello []byte
}

func newSessionClient(hub *SessionHub, conn *websocket.Conn, sessionID string, hello []byte) *sessionClient {
	return &sessionClient{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 64),
		sessionID: sessionID,
		hello:     hello,
	}
}

func (c *sessionClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	readUntilClosed(c.conn)
}

func (c *sessionClient) writePump() {
	writeUntilClosed(c.conn, c.send)
}
