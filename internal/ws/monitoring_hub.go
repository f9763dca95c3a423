package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/events"
)

type monitoringMessage struct {
	classroomID string
	payload     []byte
}

// MonitoringHub fans session events out to teacher dashboards, scoped by classroom.
type MonitoringHub struct {
	register   chan *monitoringClient
	unregister chan *monitoringClient
	broadcast  chan monitoringMessage
	clients    map[*monitoringClient]struct{}
}

func NewMonitoringHub() *MonitoringHub {
	return &MonitoringHub{
		register:   make(chan *monitoringClient),
		unregister: make(chan *monitoringClient),
		broadcast:  make(chan monitoringMessage, sendBufferSize),
		clients:    make(map[*monitoringClient]struct{}),
	}
}

func (h *MonitoringHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(msg.classroomID) {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					h.drop(client)
				}
			}
		}
	}
}

func (h *MonitoringHub) drop(client *monitoringClient) {
	delete(h.clients, client)
	close(client.send)
	client.conn.Close()
}

// Broadcast queues e for dashboards watching its classroom. It reports false
// when the queue is full.
func (h *MonitoringHub) Broadcast(e events.Event) bool {
	if h == nil {
		return true
	}
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("ws: failed to marshal event")
		return true
	}
	select {
	case h.broadcast <- monitoringMessage{classroomID: e.ClassroomID, payload: data}:
		return true
	default:
		return false
	}
}

type monitoringClient struct {
	hub        *MonitoringHub
	conn       *websocket.Conn
	send       chan []byte
	classrooms map[string]struct{}
	allowAll   bool
}

func newMonitoringClient(hub *MonitoringHub, conn *websocket.Conn, classrooms map[string]struct{}, allowAll bool) *monitoringClient {
	return &monitoringClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		classrooms: classrooms,
		allowAll:   allowAll,
	}
}

func (c *monitoringClient) wants(classroomID string) bool {
	if c.allowAll {
		return true
	}
	_, ok := c.classrooms[classroomID]
	return ok
}

func (c *monitoringClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	readUntilClosed(c.conn)
}

func (c *monitoringClient) writePump() {
	writeUntilClosed(c.conn, c.send)
}

func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func writeUntilClosed(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
