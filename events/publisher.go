// Package events hands match lifecycle events to downstream consumers over NATS.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

type subjectPublisher interface {
	Publish(subject string, data []byte) error
}

// NatsPublisher publishes JSON payloads to "<prefix>.<event>".
type NatsPublisher struct {
	conn   subjectPublisher
	closer func()
	prefix string
}

// NewNatsPublisher connects to url and keeps reconnecting forever in the background.
func NewNatsPublisher(url, prefix string) (*NatsPublisher, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("pong-match-service"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[Events] NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[Events] NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsPublisher{conn: conn, closer: conn.Close, prefix: prefix}, nil
}

// Subject is the full subject an event is published on.
func (p *NatsPublisher) Subject(event string) string {
	if p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

func (p *NatsPublisher) Publish(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	if err := p.conn.Publish(p.Subject(event), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) error { return nil }
