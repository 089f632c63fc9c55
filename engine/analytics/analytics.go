// Package analytics publishes one record per chat request to NATS.
package analytics

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/festa/engine/domain"
	"github.com/WessleyAI/festa/pkg/natsutil"
)

// DefaultSubject is where chat events are published.
const DefaultSubject = "festa.chat.completed"

// Publisher sends domain.ChatEvent records to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a Publisher on nc.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Publish sends ev. It does not wait for delivery.
func (p *Publisher) Publish(ctx context.Context, ev domain.ChatEvent) error {
	if err := natsutil.Publish(ctx, p.nc, p.subject, ev); err != nil {
		return fmt.Errorf("analytics: publish %s: %w", p.subject, err)
	}
	return nil
}

// Subscribe delivers chat events published on subject to handler.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, domain.ChatEvent)) (*nats.Subscription, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	return natsutil.Subscribe(nc, subject, handler)
}
