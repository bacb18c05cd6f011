package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
)

// Event types published by the storefront.
const (
	EventCheckoutCreated  = "checkout.created"
	EventContactSubmitted = "contact.submitted"
	EventMixingCompleted  = "mixing.completed"
)

// Event is the envelope written to the events topic.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	SessionID  string         `json:"session_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher delivers storefront events.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
}

// PubSubPublisher publishes events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

// NewPubSubPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubPublisher(topic *pubsub.Topic) (*PubSubPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub publisher: topic is required")
	}
	return &PubSubPublisher{topic: topic, marshal: json.Marshal}, nil
}

// Publish sends the event and waits for the server-assigned message ID.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub publisher: not initialised")
	}
	if strings.TrimSpace(event.Type) == "" {
		return "", errors.New("pubsub publisher: event type is required")
	}

	data, err := p.marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventId", event.ID)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "sessionId", event.SessionID)

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s event: %w", event.Type, err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

// NopPublisher drops events. It is used when no Pub/Sub project is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) (string, error) { return "", nil }

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
