package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/deliverhub/webhook-relay/internal/domain"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 3
)

// QueueName returns the provider work queue name, e.g. careem.
func QueueName(provider domain.Provider) string {
	return strings.ToLower(provider.String())
}

// DLQName returns the dead-letter queue name for a provider, e.g. dlq.careem.
func DLQName(provider domain.Provider) string {
	return fmt.Sprintf("dlq.%s", QueueName(provider))
}

// WorkQueueNames returns all provider work queues.
func WorkQueueNames() []string {
	providers := domain.Providers()
	queues := make([]string, 0, len(providers))
	for _, provider := range providers {
		queues = append(queues, QueueName(provider))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	providers := domain.Providers()
	queues := make([]string, 0, len(providers))
	for _, provider := range providers {
		queues = append(queues, DLQName(provider))
	}
	return queues
}

// PriorityValue maps an event type to RabbitMQ message priority. Order
// traffic is dispatched ahead of status and menu-sync traffic.
func PriorityValue(event domain.EventType) uint8 {
	switch event {
	case domain.EventOrderCreated, domain.EventOrderUpdated, domain.EventOrderCancelled:
		return 3
	case domain.EventIntegrationStatus, domain.EventWebhookReceived, domain.EventProviderStatusHeartbeat:
		return 2
	case domain.EventMenuSyncStarted, domain.EventMenuSyncCompleted, domain.EventMenuSyncFailed:
		return 1
	default:
		return 0
	}
}
