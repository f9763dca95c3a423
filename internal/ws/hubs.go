package ws

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zaqqye/seb_proctor/internal/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Hubs pushes session events to students and monitoring dashboards.
type Hubs struct {
	Monitoring *MonitoringHub
	Sessions   *SessionHub
}

var _ events.Publisher = (*Hubs)(nil)

func NewHubs() *Hubs {
	return &Hubs{
		Monitoring: NewMonitoringHub(),
		Sessions:   NewSessionHub(),
	}
}

// Run serves both hubs until ctx is cancelled.
func (h *Hubs) Run(ctx context.Context) {
	go h.Monitoring.Run(ctx)
	h.Sessions.Run(ctx)
}

func (h *Hubs) Publish(_ context.Context, e events.Event) {
	if h == nil {
		return
	}
	if !h.Monitoring.Broadcast(e) {
		log.Warn().Str("session_id", e.SessionID).Str("type", string(e.Type)).Msg("ws: monitoring hub busy, event dropped")
	}
	if !h.Sessions.Notify(e) {
		log.Warn().Str("session_id", e.SessionID).Str("type", string(e.Type)).Msg("ws: session hub busy, event dropped")
	}
}
