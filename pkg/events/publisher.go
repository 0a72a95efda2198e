package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix namespaces every subject published by this service.
const DefaultSubjectPrefix = "timetable"

// Event is the envelope written to NATS.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher emits domain events to NATS subjects of the form <prefix>.<type>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// NewPublisher connects to the NATS server at natsURL.
func NewPublisher(natsURL, prefix string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	nc, err := nats.Connect(natsURL,
		nats.Name("uc-timetable-api"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	logger.Info("connected to nats", zap.String("url", natsURL))
	return &Publisher{nc: nc, prefix: strings.TrimSuffix(prefix, "."), logger: logger}, nil
}

// Subject returns the full subject for an event type.
func (p *Publisher) Subject(eventType string) string {
	return Subject(p.prefix, eventType)
}

// Publish marshals data into an Event and publishes it.
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := Encode(eventType, data, time.Now().UTC())
	if err != nil {
		return err
	}
	subject := p.Subject(eventType)
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("published event", zap.String("subject", subject))
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
		p.nc.Close()
	}
}

// Subject joins a prefix and an event type.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Encode renders the JSON envelope for an event.
func Encode(eventType string, data interface{}, at time.Time) ([]byte, error) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data, Timestamp: at})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return payload, nil
}

// NopPublisher drops every event. It is used when NATS_URL is empty.
type NopPublisher struct{}

// Publish implements the publisher contract without side effects.
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() {}
