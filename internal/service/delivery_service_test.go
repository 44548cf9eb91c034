package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"go.uber.org/zap"
)

func newTestDeliveryService(
	t *testing.T,
	deliveries *fakeDeliveryRepo,
	logs *fakeLogRepo,
	publisher *fakePublisher,
) *DeliveryService {
	t.Helper()

	svc, err := NewDeliveryService(deliveries, logs, publisher, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryService() error = %v", err)
	}
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc
}

func queuedDelivery(status domain.Status) *domain.Delivery {
	return &domain.Delivery{
		ID:         "d1",
		WebhookID:  "wh-1",
		ClientID:   "client-1",
		Provider:   domain.ProviderCareem,
		EventType:  domain.EventOrderCreated,
		Payload:    `{"orderId":"o-1"}`,
		Status:     status,
		RetryCount: 2,
		MaxRetries: 5,
	}
}

func TestDeliveryServiceRetryFailedDelivery(t *testing.T) {
	t.Parallel()

	var markedDue, published, cleared bool

	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			return queuedDelivery(domain.StatusFailed), nil
		},
		markForRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
			markedDue = true
			return nil
		},
		clearNextRetryAtFn: func(ctx context.Context, id string) error {
			cleared = true
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			published = true
			if queueName != "careem" {
				t.Fatalf("queue = %q, want careem", queueName)
			}
			return nil
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, publisher)

	delivery, err := svc.Retry(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	if !markedDue || !published || !cleared {
		t.Fatalf("markedDue=%v published=%v cleared=%v, want all true", markedDue, published, cleared)
	}
	if delivery.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", delivery.Status)
	}
	// A manual retry resumes the chain; the count is not reset.
	if delivery.RetryCount != 2 {
		t.Fatalf("retryCount = %d, want 2", delivery.RetryCount)
	}
}

func TestDeliveryServiceRetryGuards(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status domain.Status
	}{
		{name: "processing cannot be retried", status: domain.StatusProcessing},
		{name: "abandoned cannot be retried", status: domain.StatusAbandoned},
		{name: "delivered cannot be retried", status: domain.StatusDelivered},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			deliveries := &fakeDeliveryRepo{
				getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
					return queuedDelivery(tc.status), nil
				},
				markForRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
					t.Fatal("guarded status must not reach the repository")
					return nil
				},
			}
			publisher := &fakePublisher{
				publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
					t.Fatal("guarded status must not be published")
					return nil
				},
			}

			svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, publisher)

			_, err := svc.Retry(context.Background(), "d1")
			if !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("Retry() error = %v, want ErrConflict", err)
			}
		})
	}
}

func TestDeliveryServiceRetryMissingDelivery(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			return nil, domain.ErrNotFound
		},
	}
	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, &fakePublisher{})

	_, err := svc.Retry(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Retry() error = %v, want ErrNotFound", err)
	}
}

func TestDeliveryServiceBulkRetryEmptyIsNoop(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			t.Fatal("empty bulk retry must not touch the repository")
			return nil, nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			t.Fatal("empty bulk retry must not publish")
			return nil
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, publisher)

	result, err := svc.BulkRetry(context.Background(), nil)
	if err != nil {
		t.Fatalf("BulkRetry() error = %v", err)
	}
	if result.Requested != 0 || result.Succeeded != 0 || result.Failed != 0 {
		t.Fatalf("result = %+v, want all zero", result)
	}
}

func TestDeliveryServiceBulkRetryPartialFailure(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			delivery := queuedDelivery(domain.StatusFailed)
			delivery.ID = id
			if id == "d2" {
				delivery.Status = domain.StatusAbandoned
			}
			return delivery, nil
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, &fakePublisher{})

	result, err := svc.BulkRetry(context.Background(), []string{"d1", "d2", "d3"})
	if err != nil {
		t.Fatalf("BulkRetry() error = %v", err)
	}

	if result.Requested != 3 {
		t.Fatalf("requested = %d, want 3", result.Requested)
	}
	if result.Succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", result.Succeeded)
	}
	if result.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Failed)
	}
	if len(result.Failures) != 1 || result.Failures[0].DeliveryID != "d2" {
		t.Fatalf("failures = %+v, want single entry for d2", result.Failures)
	}
}

func TestDeliveryServiceCancelProcessing(t *testing.T) {
	t.Parallel()

	var canceled bool
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			return queuedDelivery(domain.StatusProcessing), nil
		},
		cancelProcessingFn: func(ctx context.Context, id string, reason string) error {
			canceled = true
			return nil
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, &fakePublisher{})

	delivery, err := svc.Cancel(context.Background(), "d1")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !canceled {
		t.Fatal("cancel should reach the repository")
	}
	if delivery.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want FAILED", delivery.Status)
	}
}

func TestDeliveryServiceCancelRejectsNonProcessing(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			return queuedDelivery(domain.StatusPending), nil
		},
	}
	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, &fakePublisher{})

	_, err := svc.Cancel(context.Background(), "d1")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Cancel() error = %v, want ErrConflict", err)
	}
}

func TestDeliveryServiceRemoveAbandonedOnly(t *testing.T) {
	t.Parallel()

	var removed bool
	deliveries := &fakeDeliveryRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
			return queuedDelivery(domain.StatusAbandoned), nil
		},
		removeFn: func(ctx context.Context, id string) error {
			removed = true
			return nil
		},
	}
	svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, &fakePublisher{})

	if err := svc.Remove(context.Background(), "d1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed {
		t.Fatal("remove should reach the repository")
	}
}

func TestDeliveryServiceRemoveRejectsActive(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.Status{domain.StatusPending, domain.StatusProcessing, domain.StatusFailed, domain.StatusDelivered} {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()

			deliveries := &fakeDeliveryRepo{
				getByIDFn: func(ctx context.Context, id string) (*domain.Delivery, error) {
					return queuedDelivery(status), nil
				},
				removeFn: func(ctx context.Context, id string) error {
					t.Fatal("non-abandoned delivery must not be removed")
					return nil
				},
			}
			svc := newTestDeliveryService(t, deliveries, &fakeLogRepo{}, &fakePublisher{})

			err := svc.Remove(context.Background(), "d1")
			if !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("Remove() error = %v, want ErrConflict", err)
			}
		})
	}
}

func TestDeliveryServiceStatsCombinesSources(t *testing.T) {
	t.Parallel()

	logs := &fakeLogRepo{
		statsFn: func(ctx context.Context, params repository.ListParams) (*repository.StatsRow, error) {
			return &repository.StatsRow{Total: 10, Succeeded: 7, Failed: 3, AvgResponseTimeMs: 120.5}, nil
		},
	}
	deliveries := &fakeDeliveryRepo{
		countByStatusFn: func(ctx context.Context, params repository.ListParams) ([]repository.StatusCount, error) {
			return []repository.StatusCount{
				{Status: domain.StatusPending, Count: 2},
				{Status: domain.StatusFailed, Count: 1},
			}, nil
		},
	}

	svc := newTestDeliveryService(t, deliveries, logs, &fakePublisher{})

	stats, err := svc.Stats(context.Background(), repository.ListParams{})
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.Total != 10 || stats.Succeeded != 7 || stats.Failed != 3 {
		t.Fatalf("stats = %+v, want totals 10/7/3", stats)
	}
	if stats.AvgResponseTimeMs != 120.5 {
		t.Fatalf("avg response = %v, want 120.5", stats.AvgResponseTimeMs)
	}
	if len(stats.ByStatus) != 2 {
		t.Fatalf("byStatus = %+v, want two buckets", stats.ByStatus)
	}
}
