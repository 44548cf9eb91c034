package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/deliverhub/webhook-relay/internal/observability"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/ratelimit"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/deliverhub/webhook-relay/internal/sender"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	maxRetryJitterMillis = 250
)

// WorkerService consumes provider queues and executes delivery attempts:
// claim the delivery, send the signed request, record the log row, and move
// the state machine per the attempt outcome.
type WorkerService struct {
	deliveries  repository.DeliveryRepository
	webhooks    repository.WebhookRepository
	logs        repository.LogRepository
	consumer    queue.Consumer
	sender      sender.Sender
	rateLimiter ratelimit.RateLimiter
	broker      *events.Broker
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	now         func() time.Time
	randIntn    func(n int) int
}

func NewWorkerService(
	deliveries repository.DeliveryRepository,
	webhooks repository.WebhookRepository,
	logs repository.LogRepository,
	consumer queue.Consumer,
	deliverySender sender.Sender,
	rateLimiter ratelimit.RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		deliveries:  deliveries,
		webhooks:    webhooks,
		logs:        logs,
		consumer:    consumer,
		sender:      deliverySender,
		rateLimiter: rateLimiter,
		logger:      logger,
		concurrency: concurrency,
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *WorkerService) SetBroker(broker *events.Broker) {
	if s == nil {
		return
	}
	s.broker = broker
}

// Start consumes provider queues and processes delivery messages until
// context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	delivery, err := s.deliveries.LockForProcessing(ctx, msg.DeliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("delivery not found during lock, skipping",
				zap.String("deliveryId", msg.DeliveryID),
			)
			return nil
		}
		return fmt.Errorf("failed to lock delivery for processing: %w", err)
	}

	// Nil means the delivery was not pending (terminal or already claimed);
	// ack and skip.
	if delivery == nil {
		return nil
	}

	providerName := strings.ToLower(delivery.Provider.String())
	if s.metrics != nil {
		s.metrics.IncWorkerInFlight(providerName)
		defer s.metrics.DecWorkerInFlight(providerName)
	}

	config, err := s.webhooks.GetByID(ctx, delivery.WebhookID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return s.failDelivery(ctx, delivery, providerName, "webhook config no longer exists", "config_missing")
		}
		return fmt.Errorf("failed to load webhook config: %w", err)
	}
	if !config.IsActive {
		return s.failDelivery(ctx, delivery, providerName, "webhook config is inactive", "config_inactive")
	}

	if err := s.rateLimiter.Wait(ctx, providerName); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	attemptNumber := delivery.RetryCount + 1
	sendStart := s.now()
	result, sendErr := s.sender.Send(ctx, *config, *delivery)
	if s.metrics != nil {
		s.metrics.ObserveDeliverySendDuration(providerName, s.now().Sub(sendStart))
	}

	if err := s.recordLog(ctx, delivery, attemptNumber, result, sendErr); err != nil {
		return fmt.Errorf("failed to record delivery log: %w", err)
	}

	if sendErr == nil {
		if err := s.deliveries.MarkDelivered(ctx, delivery.ID); err != nil {
			return fmt.Errorf("failed to mark delivery as delivered: %w", err)
		}
		if s.metrics != nil {
			s.metrics.IncDeliverySent(providerName)
		}
		s.publish(events.KindDeliverySucceeded, delivery.ClientID, delivery.Provider, delivery)
		return nil
	}

	isTransient := sender.IsTransient(sendErr)
	if isTransient && delivery.RetryCount < delivery.MaxRetries {
		policy := config.RetryPolicy.Normalize()
		nextRetryAt := s.now().UTC().Add(s.retryDelay(policy, attemptNumber))
		if err := s.deliveries.ScheduleRetry(ctx, delivery.ID, nextRetryAt, sendErr.Error()); err != nil {
			return fmt.Errorf("failed to schedule delivery retry: %w", err)
		}
		delivery.RetryCount = attemptNumber
		delivery.NextRetryAt = &nextRetryAt
		if s.metrics != nil {
			s.metrics.IncRetryScheduled(providerName)
		}
		s.publish(events.KindDeliveryRetryScheduled, delivery.ClientID, delivery.Provider, delivery)
		return nil
	}

	reason := "permanent_error"
	if isTransient {
		reason = "retry_exhausted"
	}
	return s.failDelivery(ctx, delivery, providerName, sendErr.Error(), reason)
}

func (s *WorkerService) failDelivery(
	ctx context.Context,
	delivery *domain.Delivery,
	providerName string,
	lastError string,
	reason string,
) error {
	if err := s.deliveries.MarkFailed(ctx, delivery.ID, lastError); err != nil {
		return fmt.Errorf("failed to mark delivery as failed: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncDeliveryFailed(providerName, reason)
	}
	s.publish(events.KindDeliveryFailed, delivery.ClientID, delivery.Provider, delivery)
	return nil
}

// retryDelay applies the config's backoff policy for the given attempt plus
// a small random jitter so synchronized failures do not retry in lockstep.
func (s *WorkerService) retryDelay(policy domain.RetryPolicy, attemptNumber int) time.Duration {
	delay := policy.Delay(attemptNumber)

	jitterMillis := 0
	if s.randIntn != nil {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *WorkerService) recordLog(
	ctx context.Context,
	delivery *domain.Delivery,
	attemptNumber int,
	result *sender.SendResult,
	sendErr error,
) error {
	var httpStatus *int
	var responseBody *string
	var responseTimeMs *int64
	var attemptErr *string

	if result != nil {
		if result.StatusCode > 0 {
			value := result.StatusCode
			httpStatus = &value
		}
		if body := strings.TrimSpace(result.Body); body != "" {
			value := result.Body
			responseBody = &value
		}
		millis := result.ResponseTime.Milliseconds()
		responseTimeMs = &millis
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var deliveryErr *sender.SendError
		if errors.As(sendErr, &deliveryErr) && deliveryErr.StatusCode > 0 && httpStatus == nil {
			value := deliveryErr.StatusCode
			httpStatus = &value
		}
	}

	requestBody := delivery.Payload
	log := &domain.DeliveryLog{
		ID:             uuid.NewString(),
		DeliveryID:     delivery.ID,
		WebhookID:      delivery.WebhookID,
		ClientID:       delivery.ClientID,
		Provider:       delivery.Provider,
		EventType:      delivery.EventType,
		AttemptNumber:  attemptNumber,
		RequestBody:    &requestBody,
		ResponseBody:   responseBody,
		HTTPStatus:     httpStatus,
		ResponseTimeMs: responseTimeMs,
		Error:          attemptErr,
		CreatedAt:      s.now().UTC(),
	}

	return s.logs.Create(ctx, log)
}

func (s *WorkerService) publish(kind events.Kind, clientID string, provider domain.Provider, payload any) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(kind, clientID, provider, payload)
}
