package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubSubPublisherPublishesEvent(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "storefront-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubPublisher: %v", err)
	}
	defer publisher.Stop()

	event := Event{
		ID:         "01HZX",
		Type:       EventCheckoutCreated,
		OccurredAt: time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
		SessionID:  "sess-1",
		Payload:    map[string]any{"checkout_id": "gid://shopify/Checkout/1"},
	}
	if _, err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	var payload Event
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != EventCheckoutCreated || payload.Payload["checkout_id"] != "gid://shopify/Checkout/1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if messages[0].Attributes["eventType"] != EventCheckoutCreated || messages[0].Attributes["sessionId"] != "sess-1" {
		t.Fatalf("unexpected attributes %v", messages[0].Attributes)
	}
}

func TestNewPubSubPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
