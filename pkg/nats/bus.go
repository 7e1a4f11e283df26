// Package nats carries collaboration events over a JetStream work queue so
// that exactly one relay instance handles each of them.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"novelsync-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName    = "COLLAB"
	subjectPrefix = "collab.events."
	// Redeliveries of a message whose handler keeps failing.
	maxDeliver = 5
)

// Bus publishes and consumes events on one connection.
type Bus struct {
	nc        *nats.Conn
	js        jetstream.JetStream
	consumers []jetstream.ConsumeContext
}

func Subject(eventType string) string {
	return subjectPrefix + eventType
}

// Connect dials url and makes sure the stream exists.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("novelsync-relay"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ">"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.WorkQueuePolicy,
		MaxAge:     24 * time.Hour,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		// NATS may still be starting; publishing will report the problem.
		log.Printf("Warn: Failed to ensure stream '%s': %v", streamName, err)
	}

	return &Bus{nc: nc, js: js}, nil
}

// Publish stores event on the stream. Publishing the same event twice
// within the duplicate window keeps one copy.
func (b *Bus) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event.EventType(), err)
	}

	subject := Subject(event.EventType())
	if _, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.DedupKey())); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe runs handler for every event of eventType through a durable
// consumer. Handler errors trigger a redelivery.
func (b *Bus) Subscribe(ctx context.Context, eventType, durable string, handler events.Handler) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: Subject(eventType),
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", durable, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		published := time.Now()
		if meta, err := msg.Metadata(); err == nil {
			published = meta.Timestamp
		}

		err := handler(ctx, events.Message{
			Type:        strings.TrimPrefix(msg.Subject(), subjectPrefix),
			Body:        msg.Data(),
			PublishedAt: published,
		})
		if err != nil {
			log.Printf("Handler failed for %s: %v", msg.Subject(), err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", durable, err)
	}

	b.consumers = append(b.consumers, cc)
	return nil
}

// Close stops the consumers and the connection.
func (b *Bus) Close() {
	for _, cc := range b.consumers {
		cc.Stop()
	}
	if b.nc != nil {
		b.nc.Drain()
	}
}
