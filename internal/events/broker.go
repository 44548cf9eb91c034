// Package events fans typed delivery lifecycle envelopes out to stream
// subscribers. A single dispatch goroutine owns the subscriber registry, so
// publishers and subscribers never share mutable state. Ordering across
// envelope kinds is not guaranteed; each envelope stands alone.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind labels the lifecycle event an envelope carries.
type Kind string

const (
	KindWebhookReceived        Kind = "webhook_received"
	KindDeliverySucceeded      Kind = "delivery_succeeded"
	KindDeliveryFailed         Kind = "delivery_failed"
	KindDeliveryRetryScheduled Kind = "delivery_retry_scheduled"
	KindDeliveryAbandoned      Kind = "delivery_abandoned"
	KindConfigUpdated          Kind = "config_updated"
)

// Envelope is the wire format pushed to stream subscribers.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	ClientID  string          `json:"clientId,omitempty"`
	Provider  domain.Provider `json:"provider,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const defaultSubscriberBuffer = 64

type subscriber struct {
	id       string
	clientID string
	ch       chan Envelope
}

type subscribeRequest struct {
	sub   subscriber
	ready chan struct{}
}

// ErrClosed reports a subscription attempt after the dispatch loop exited.
var ErrClosed = errors.New("event broker closed")

// Broker distributes envelopes to subscribers from a single dispatch loop.
// Slow subscribers are skipped rather than blocking the loop.
type Broker struct {
	logger      *zap.Logger
	publishCh   chan Envelope
	subscribeCh chan subscribeRequest
	cancelCh    chan string
	done        chan struct{}
	now         func() time.Time
}

func NewBroker(logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broker{
		logger:      logger,
		publishCh:   make(chan Envelope, 256),
		subscribeCh: make(chan subscribeRequest),
		cancelCh:    make(chan string),
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Start runs the dispatch loop until context cancellation.
func (b *Broker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	defer close(b.done)

	subscribers := make(map[string]subscriber)

	for {
		select {
		case <-ctx.Done():
			for _, sub := range subscribers {
				close(sub.ch)
			}
			return nil

		case req := <-b.subscribeCh:
			subscribers[req.sub.id] = req.sub
			close(req.ready)

		case id := <-b.cancelCh:
			if sub, ok := subscribers[id]; ok {
				delete(subscribers, id)
				close(sub.ch)
			}

		case envelope := <-b.publishCh:
			for _, sub := range subscribers {
				if sub.clientID != "" && sub.clientID != envelope.ClientID {
					continue
				}
				select {
				case sub.ch <- envelope:
				default:
					b.logger.Warn("dropping envelope for slow subscriber",
						zap.String("subscriberId", sub.id),
						zap.String("kind", string(envelope.Kind)),
					)
				}
			}
		}
	}
}

// Subscribe registers a stream consumer. An empty clientID receives all
// envelopes; otherwise only envelopes scoped to that client are delivered.
// The returned cancel func must be called when the consumer goes away.
func (b *Broker) Subscribe(ctx context.Context, clientID string) (<-chan Envelope, func(), error) {
	sub := subscriber{
		id:       uuid.NewString(),
		clientID: clientID,
		ch:       make(chan Envelope, defaultSubscriberBuffer),
	}

	req := subscribeRequest{sub: sub, ready: make(chan struct{})}
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-b.done:
		return nil, nil, ErrClosed
	case b.subscribeCh <- req:
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-req.ready:
	}

	// Blocks until the dispatch loop takes the unsubscription, so the
	// registry entry is guaranteed gone once cancel returns. The done case
	// covers a loop that has already exited.
	cancel := func() {
		select {
		case b.cancelCh <- sub.id:
		case <-b.done:
		}
	}

	return sub.ch, cancel, nil
}

// Publish enqueues an envelope for dispatch. It never blocks; when the
// dispatch loop is saturated the envelope is dropped and logged.
func (b *Broker) Publish(kind Kind, clientID string, provider domain.Provider, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Warn("failed to marshal event payload",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}

	envelope := Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		ClientID:  clientID,
		Provider:  provider,
		Timestamp: b.now().UTC(),
		Payload:   raw,
	}

	select {
	case b.publishCh <- envelope:
	default:
		b.logger.Warn("dropping envelope: dispatch queue full",
			zap.String("kind", string(kind)),
		)
	}
}
