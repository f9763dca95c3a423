package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const defaultSubjectPrefix = "proctor.session"

// NATSPublisher publishes each event on <prefix>.<type>, e.g. proctor.session.session_locked.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func ConnectNATS(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("seb_proctor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, prefix: defaultSubjectPrefix}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("type", string(e.Type)).Msg("events: marshal failed")
		return
	}
	if err := p.nc.Publish(p.prefix+"."+string(e.Type), data); err != nil {
		log.Warn().Err(err).Str("session_id", e.SessionID).Msg("events: nats publish failed")
	}
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
