package service

import (
	"context"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/deliverhub/webhook-relay/internal/sender"
)

type fakeDeliveryRepo struct {
	createFn            func(ctx context.Context, d *domain.Delivery) error
	getByIDFn           func(ctx context.Context, id string) (*domain.Delivery, error)
	listFn              func(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error)
	lockForProcessingFn func(ctx context.Context, id string) (*domain.Delivery, error)
	markDeliveredFn     func(ctx context.Context, id string) error
	scheduleRetryFn     func(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error
	markFailedFn        func(ctx context.Context, id string, lastError string) error
	markForRetryFn      func(ctx context.Context, id string, nextRetryAt time.Time) error
	cancelProcessingFn  func(ctx context.Context, id string, reason string) error
	getDueForRetryFn    func(ctx context.Context, limit int) ([]domain.Delivery, error)
	clearNextRetryAtFn  func(ctx context.Context, id string) error
	abandonStaleFn      func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error)
	removeFn            func(ctx context.Context, id string) error
	countByStatusFn     func(ctx context.Context, params repository.ListParams) ([]repository.StatusCount, error)
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, d)
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeDeliveryRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error) {
	if f.listFn == nil {
		return nil, 0, nil
	}
	return f.listFn(ctx, params)
}

func (f *fakeDeliveryRepo) LockForProcessing(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.lockForProcessingFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.lockForProcessingFn(ctx, id)
}

func (f *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	if f.markDeliveredFn == nil {
		return nil
	}
	return f.markDeliveredFn(ctx, id)
}

func (f *fakeDeliveryRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error {
	if f.scheduleRetryFn == nil {
		return nil
	}
	return f.scheduleRetryFn(ctx, id, nextRetryAt, lastError)
}

func (f *fakeDeliveryRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	if f.markFailedFn == nil {
		return nil
	}
	return f.markFailedFn(ctx, id, lastError)
}

func (f *fakeDeliveryRepo) MarkForRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	if f.markForRetryFn == nil {
		return nil
	}
	return f.markForRetryFn(ctx, id, nextRetryAt)
}

func (f *fakeDeliveryRepo) CancelProcessing(ctx context.Context, id string, reason string) error {
	if f.cancelProcessingFn == nil {
		return nil
	}
	return f.cancelProcessingFn(ctx, id, reason)
}

func (f *fakeDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if f.getDueForRetryFn == nil {
		return nil, nil
	}
	return f.getDueForRetryFn(ctx, limit)
}

func (f *fakeDeliveryRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	if f.clearNextRetryAtFn == nil {
		return nil
	}
	return f.clearNextRetryAtFn(ctx, id)
}

func (f *fakeDeliveryRepo) AbandonStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error) {
	if f.abandonStaleFn == nil {
		return nil, nil
	}
	return f.abandonStaleFn(ctx, olderThan, limit)
}

func (f *fakeDeliveryRepo) Remove(ctx context.Context, id string) error {
	if f.removeFn == nil {
		return nil
	}
	return f.removeFn(ctx, id)
}

func (f *fakeDeliveryRepo) CountByStatus(ctx context.Context, params repository.ListParams) ([]repository.StatusCount, error) {
	if f.countByStatusFn == nil {
		return nil, nil
	}
	return f.countByStatusFn(ctx, params)
}

type fakeWebhookRepo struct {
	createFn             func(ctx context.Context, c *domain.WebhookConfig) error
	getByIDFn            func(ctx context.Context, id string) (*domain.WebhookConfig, error)
	listFn               func(ctx context.Context, clientID string) ([]domain.WebhookConfig, error)
	listActiveForEventFn func(ctx context.Context, event domain.EventType, provider *domain.Provider, clientID string) ([]domain.WebhookConfig, error)
	updateFn             func(ctx context.Context, c *domain.WebhookConfig) error
	deleteFn             func(ctx context.Context, id string) error
}

func (f *fakeWebhookRepo) Create(ctx context.Context, c *domain.WebhookConfig) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, c)
}

func (f *fakeWebhookRepo) GetByID(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrNotFound
	}
	return f.getByIDFn(ctx, id)
}

func (f *fakeWebhookRepo) List(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, clientID)
}

func (f *fakeWebhookRepo) ListActiveForEvent(
	ctx context.Context,
	event domain.EventType,
	provider *domain.Provider,
	clientID string,
) ([]domain.WebhookConfig, error) {
	if f.listActiveForEventFn == nil {
		return nil, nil
	}
	return f.listActiveForEventFn(ctx, event, provider, clientID)
}

func (f *fakeWebhookRepo) Update(ctx context.Context, c *domain.WebhookConfig) error {
	if f.updateFn == nil {
		return nil
	}
	return f.updateFn(ctx, c)
}

func (f *fakeWebhookRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(ctx, id)
}

type fakeLogRepo struct {
	createFn          func(ctx context.Context, l *domain.DeliveryLog) error
	getByDeliveryIDFn func(ctx context.Context, deliveryID string) ([]domain.DeliveryLog, error)
	listFn            func(ctx context.Context, params repository.ListParams) ([]domain.DeliveryLog, int64, error)
	statsFn           func(ctx context.Context, params repository.ListParams) (*repository.StatsRow, error)
	metricsFn         func(ctx context.Context, params repository.ListParams) ([]repository.MetricRow, error)
}

func (f *fakeLogRepo) Create(ctx context.Context, l *domain.DeliveryLog) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(ctx, l)
}

func (f *fakeLogRepo) GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryLog, error) {
	if f.getByDeliveryIDFn == nil {
		return nil, nil
	}
	return f.getByDeliveryIDFn(ctx, deliveryID)
}

func (f *fakeLogRepo) List(ctx context.Context, params repository.ListParams) ([]domain.DeliveryLog, int64, error) {
	if f.listFn == nil {
		return nil, 0, nil
	}
	return f.listFn(ctx, params)
}

func (f *fakeLogRepo) Stats(ctx context.Context, params repository.ListParams) (*repository.StatsRow, error) {
	if f.statsFn == nil {
		return &repository.StatsRow{}, nil
	}
	return f.statsFn(ctx, params)
}

func (f *fakeLogRepo) Metrics(ctx context.Context, params repository.ListParams) ([]repository.MetricRow, error) {
	if f.metricsFn == nil {
		return nil, nil
	}
	return f.metricsFn(ctx, params)
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error
	closeFn   func() error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
	if f.publishFn == nil {
		return nil
	}
	return f.publishFn(ctx, queueName, msg)
}

func (f *fakePublisher) Close() error {
	if f.closeFn == nil {
		return nil
	}
	return f.closeFn()
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.consumeFn(ctx, queueName, handler)
}

func (f *fakeConsumer) Close() error { return nil }

type fakeSender struct {
	sendFn func(ctx context.Context, config domain.WebhookConfig, delivery domain.Delivery) (*sender.SendResult, error)
}

func (f *fakeSender) Send(ctx context.Context, config domain.WebhookConfig, delivery domain.Delivery) (*sender.SendResult, error) {
	if f.sendFn == nil {
		return &sender.SendResult{StatusCode: 200}, nil
	}
	return f.sendFn(ctx, config, delivery)
}

type fakeProber struct {
	probeFn func(ctx context.Context, url string, payload string) *sender.ProbeResult
}

func (f *fakeProber) Probe(ctx context.Context, url string, payload string) *sender.ProbeResult {
	if f.probeFn == nil {
		return &sender.ProbeResult{Reachable: true, StatusCode: 200}
	}
	return f.probeFn(ctx, url, payload)
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, provider string) (bool, error)
	waitFn  func(ctx context.Context, provider string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, provider string) (bool, error) {
	if f.allowFn == nil {
		return true, nil
	}
	return f.allowFn(ctx, provider)
}

func (f *fakeRateLimiter) Wait(ctx context.Context, provider string) error {
	if f.waitFn == nil {
		return nil
	}
	return f.waitFn(ctx, provider)
}
