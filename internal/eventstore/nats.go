package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StreamName is the JetStream stream lifecycle events are published to.
const StreamName = "HOTUPDATE_EVENTS"

// Publisher forwards journaled events to another system.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NATSPublisher publishes events to JetStream under <subject>.<type>.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to url and makes sure the event stream exists.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}

	conn, err := nats.Connect(url, nats.Name("hotupdate"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Hot update lifecycle events",
		Subjects:    []string{subject + ".>"},
		MaxAge:      30 * 24 * time.Hour,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create event stream: %w", err)
	}

	slog.Info("NATS publisher initialized for lifecycle events",
		"url", url,
		"subject", subject)

	return &NATSPublisher{conn: conn, js: js, subject: subject}, nil
}

// message is the wire form of a published event.
type message struct {
	ID        int64             `json:"id"`
	OpID      string            `json:"op_id"`
	Type      string            `json:"type"`
	Version   string            `json:"version,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func encode(e Event) ([]byte, error) {
	payload := json.RawMessage(e.Payload())
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal(message{
		ID:        e.ID(),
		OpID:      e.OpID(),
		Type:      e.Type(),
		Version:   e.Version(),
		Timestamp: e.Timestamp(),
		Payload:   payload,
		Metadata:  e.Metadata(),
	})
}

// subjectFor maps an event type to its subject, e.g. "hotupdate.events.rolled_back".
func subjectFor(base, eventType string) string {
	var b strings.Builder
	for i, r := range eventType {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return base + "." + b.String()
}

// Publish sends e to JetStream and waits for the ack.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := encode(e)
	if err != nil {
		return wrap(ErrPublishFailed, fmt.Errorf("marshal event: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	msg := &nats.Msg{
		Subject: subjectFor(p.subject, e.Type()),
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(jetstream.MsgIDHeader, fmt.Sprintf("%s-%d", e.OpID(), e.ID()))
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return wrap(ErrPublishFailed, err)
	}

	slog.Debug("Published lifecycle event",
		"type", e.Type(),
		"op_id", e.OpID())
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
