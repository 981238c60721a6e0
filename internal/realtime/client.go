// Package realtime fans session events out over NATS. Each couple's devices
// subscribe to their session subject; delivery is best effort.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectAnnounce is published once at startup so operators can see the
// service come up on the bus.
const SubjectAnnounce = "accord.service.announce"

// SessionSubject is the per-session event stream the mobile clients follow.
func SessionSubject(sessionID uuid.UUID) string {
	return fmt.Sprintf("accord.session.%s.events", sessionID)
}

// Envelope wraps every session event. ExcludeUserID tells the client gateway
// which participant must NOT receive the event; empty means broadcast.
type Envelope struct {
	Event         string         `json:"event"`
	SessionID     uuid.UUID      `json:"session_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	ExcludeUserID string         `json:"exclude_user_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// NotifyPartner publishes a session event hidden from one participant.
func (c *Client) NotifyPartner(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any, excludeUserID uuid.UUID) error {
	return c.publishEnvelope(Envelope{
		Event:         event,
		SessionID:     sessionID,
		Payload:       payload,
		ExcludeUserID: excludeUserID.String(),
		Timestamp:     time.Now().UTC(),
	})
}

// PublishSessionEvent broadcasts a session event to both participants.
func (c *Client) PublishSessionEvent(ctx context.Context, sessionID uuid.UUID, event string, payload map[string]any) error {
	return c.publishEnvelope(Envelope{
		Event:     event,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

func (c *Client) publishEnvelope(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.conn.Publish(SessionSubject(env.SessionID), data); err != nil {
		return fmt.Errorf("publish %s: %w", env.Event, err)
	}
	return nil
}

// Publish sends an arbitrary JSON payload to a raw subject.
func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
