package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when the NATS driver is selected without a subject.
const DefaultSubject = "fleet.events"

// NATSPublisher publishes envelopes on a NATS subject. Each event gets one attempt.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("bus: publish %s: %w", event, err)
	}
	return nil
}

// NATSSubscriber reads a NATS subject.
type NATSSubscriber struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSubscriber(conn *nats.Conn, subject string) *NATSSubscriber {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSubscriber{conn: conn, subject: subject}
}

func (s *NATSSubscriber) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := s.conn.Subscribe(s.subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return fmt.Errorf("bus: subscribe %s: %w", s.subject, err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()
	return nil
}

// ConnectNATS dials the server with a client name so connections are identifiable in monitoring.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name(name))
	if err != nil {
		return nil, fmt.Errorf("bus: connect nats %s: %w", url, err)
	}
	return nc, nil
}
