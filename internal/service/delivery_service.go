package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"go.uber.org/zap"
)

// DeliveryService exposes the retry queue: reading it, and the manual
// commands (retry, cancel, remove) operators run against it.
type DeliveryService struct {
	deliveries repository.DeliveryRepository
	logs       repository.LogRepository
	publisher  queue.Publisher
	broker     *events.Broker
	logger     *zap.Logger
	now        func() time.Time
}

// DeliveryStats combines attempt aggregates with current queue composition.
type DeliveryStats struct {
	Total             int64                    `json:"total"`
	Succeeded         int64                    `json:"succeeded"`
	Failed            int64                    `json:"failed"`
	AvgResponseTimeMs float64                  `json:"avgResponseTimeMs"`
	ByStatus          []repository.StatusCount `json:"byStatus"`
}

// BulkRetryResult reports per-id outcomes of a bulk retry.
type BulkRetryResult struct {
	Requested int              `json:"requested"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Failures  []BulkRetryError `json:"failures,omitempty"`
}

type BulkRetryError struct {
	DeliveryID string `json:"deliveryId"`
	Error      string `json:"error"`
}

func NewDeliveryService(
	deliveries repository.DeliveryRepository,
	logs repository.LogRepository,
	publisher queue.Publisher,
	broker *events.Broker,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logs == nil {
		return nil, fmt.Errorf("log repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		deliveries: deliveries,
		logs:       logs,
		publisher:  publisher,
		broker:     broker,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *DeliveryService) ListQueue(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error) {
	return s.deliveries.List(ctx, params)
}

func (s *DeliveryService) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	return s.deliveries.GetByID(ctx, strings.TrimSpace(id))
}

func (s *DeliveryService) ListLogs(ctx context.Context, params repository.ListParams) ([]domain.DeliveryLog, int64, error) {
	return s.logs.List(ctx, params)
}

func (s *DeliveryService) LogsForDelivery(ctx context.Context, deliveryID string) ([]domain.DeliveryLog, error) {
	if strings.TrimSpace(deliveryID) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	return s.logs.GetByDeliveryID(ctx, strings.TrimSpace(deliveryID))
}

func (s *DeliveryService) Stats(ctx context.Context, params repository.ListParams) (*DeliveryStats, error) {
	row, err := s.logs.Stats(ctx, params)
	if err != nil {
		return nil, err
	}

	counts, err := s.deliveries.CountByStatus(ctx, params)
	if err != nil {
		return nil, err
	}

	return &DeliveryStats{
		Total:             row.Total,
		Succeeded:         row.Succeeded,
		Failed:            row.Failed,
		AvgResponseTimeMs: row.AvgResponseTimeMs,
		ByStatus:          counts,
	}, nil
}

func (s *DeliveryService) Metrics(ctx context.Context, params repository.ListParams) ([]repository.MetricRow, error) {
	return s.logs.Metrics(ctx, params)
}

// Retry re-enters a pending or failed delivery into the queue with an
// immediate due time. The retry count is preserved: a manual retry resumes
// the chain, it does not restart it. Processing and terminal deliveries are
// rejected with ErrConflict.
func (s *DeliveryService) Retry(ctx context.Context, id string) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	delivery, err := s.deliveries.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}

	if !delivery.CanRetry() {
		switch delivery.Status {
		case domain.StatusProcessing:
			return nil, fmt.Errorf("%w: delivery %s is processing; cancel is the only allowed command", domain.ErrConflict, delivery.ID)
		case domain.StatusAbandoned:
			return nil, fmt.Errorf("%w: delivery %s is abandoned and can only be removed", domain.ErrConflict, delivery.ID)
		default:
			return nil, fmt.Errorf("%w: delivery %s in status %s cannot be retried", domain.ErrConflict, delivery.ID, delivery.Status)
		}
	}

	dueAt := s.now().UTC()
	if err := s.deliveries.MarkForRetry(ctx, delivery.ID, dueAt); err != nil {
		return nil, err
	}
	delivery.Status = domain.StatusPending
	delivery.NextRetryAt = &dueAt

	msg := queue.DeliveryMessage{
		DeliveryID: delivery.ID,
		WebhookID:  delivery.WebhookID,
		ClientID:   delivery.ClientID,
		Provider:   delivery.Provider,
		EventType:  delivery.EventType,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(delivery.Provider), msg); err != nil {
		// The delivery is pending with a due nextRetryAt, so the retry
		// scanner will re-publish it on its next pass.
		s.logger.Warn("failed to publish manual retry, deferring to retry scanner",
			zap.String("deliveryId", delivery.ID),
			zap.Error(err),
		)
	} else if err := s.deliveries.ClearNextRetryAt(ctx, delivery.ID); err != nil {
		s.logger.Warn("failed to clear next retry timestamp after manual retry",
			zap.String("deliveryId", delivery.ID),
			zap.Error(err),
		)
	}

	s.publish(events.KindDeliveryRetryScheduled, delivery.ClientID, delivery.Provider, delivery)
	return delivery, nil
}

// BulkRetry runs Retry over each id and reports per-id outcomes. An empty
// id list is a no-op and touches neither the repository nor the queue.
func (s *DeliveryService) BulkRetry(ctx context.Context, ids []string) (*BulkRetryResult, error) {
	result := &BulkRetryResult{Requested: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	for _, id := range ids {
		if _, err := s.Retry(ctx, id); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BulkRetryError{
				DeliveryID: id,
				Error:      err.Error(),
			})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// Cancel aborts an in-flight delivery: processing moves back to failed so
// the operator can decide whether to retry or let the sweeper take it.
func (s *DeliveryService) Cancel(ctx context.Context, id string) (*domain.Delivery, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	delivery, err := s.deliveries.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if !delivery.CanCancel() {
		return nil, fmt.Errorf("%w: delivery %s in status %s cannot be canceled", domain.ErrConflict, delivery.ID, delivery.Status)
	}

	if err := s.deliveries.CancelProcessing(ctx, delivery.ID, "canceled by operator"); err != nil {
		return nil, err
	}
	delivery.Status = domain.StatusFailed

	s.publish(events.KindDeliveryFailed, delivery.ClientID, delivery.Provider, delivery)
	return delivery, nil
}

// Remove deletes an abandoned delivery from the queue. Abandonment is the
// only state removal is allowed from.
func (s *DeliveryService) Remove(ctx context.Context, id string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	delivery, err := s.deliveries.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if !delivery.CanRemove() {
		return fmt.Errorf("%w: delivery %s in status %s is not abandoned", domain.ErrConflict, delivery.ID, delivery.Status)
	}

	if err := s.deliveries.Remove(ctx, delivery.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("%w: delivery %s changed state before removal", domain.ErrConflict, delivery.ID)
		}
		return err
	}
	return nil
}

func (s *DeliveryService) publish(kind events.Kind, clientID string, provider domain.Provider, payload any) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(kind, clientID, provider, payload)
}
