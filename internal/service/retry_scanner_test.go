package service

import (
	"context"
	"errors"
	"testing"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"go.uber.org/zap"
)

func TestRetryScannerScanDuePublishesAndClears(t *testing.T) {
	t.Parallel()

	due := []domain.Delivery{
		{ID: "d1", WebhookID: "wh-1", ClientID: "c1", Provider: domain.ProviderCareem, EventType: domain.EventOrderCreated},
		{ID: "d2", WebhookID: "wh-2", ClientID: "c2", Provider: domain.ProviderTalabat, EventType: domain.EventMenuSyncCompleted},
	}

	var published []queue.DeliveryMessage
	var cleared []string

	deliveries := &fakeDeliveryRepo{
		getDueForRetryFn: func(ctx context.Context, limit int) ([]domain.Delivery, error) {
			if limit != 50 {
				t.Fatalf("limit = %d, want 50", limit)
			}
			return due, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			cleared = append(cleared, id)
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			published = append(published, msg)
			return nil
		},
	}

	scanner, err := NewRetryScanner(deliveries, publisher, 0, 50, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}

	if len(published) != 2 {
		t.Fatalf("published = %d, want 2", len(published))
	}
	if published[0].DeliveryID != "d1" || published[1].DeliveryID != "d2" {
		t.Fatalf("published ids = %v, want [d1 d2]", published)
	}
	if len(cleared) != 2 {
		t.Fatalf("cleared = %v, want both ids", cleared)
	}
}

func TestRetryScannerSkipsClearOnPublishFailure(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getDueForRetryFn: func(ctx context.Context, limit int) ([]domain.Delivery, error) {
			return []domain.Delivery{
				{ID: "d1", WebhookID: "wh-1", Provider: domain.ProviderCareem, EventType: domain.EventOrderCreated},
			}, nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			t.Fatal("nextRetryAt must stay set when publish fails")
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			return errors.New("broker unavailable")
		},
	}

	scanner, err := NewRetryScanner(deliveries, publisher, 0, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRetryScanner() error = %v", err)
	}

	if err := scanner.scanDue(context.Background()); err != nil {
		t.Fatalf("scanDue() error = %v", err)
	}
}

func TestRetryScannerRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewRetryScanner(nil, &fakePublisher{}, 0, 0, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if _, err := NewRetryScanner(&fakeDeliveryRepo{}, nil, 0, 0, zap.NewNop()); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}
