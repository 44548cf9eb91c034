package service

import (
	"context"
	"fmt"
	"time"

	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/deliverhub/webhook-relay/internal/observability"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultSweepLimit    = 500
	defaultAbandonAfter  = 24 * time.Hour
)

// AbandonSweeper periodically moves failed deliveries that have sat
// untouched past the configured age into the abandoned state. Abandoned
// deliveries leave the retry queue for good; only removal remains.
type AbandonSweeper struct {
	deliveries   repository.DeliveryRepository
	broker       *events.Broker
	metrics      *observability.Metrics
	logger       *zap.Logger
	interval     time.Duration
	abandonAfter time.Duration
	limit        int
	now          func() time.Time
}

func NewAbandonSweeper(
	deliveries repository.DeliveryRepository,
	broker *events.Broker,
	interval time.Duration,
	abandonAfter time.Duration,
	limit int,
	logger *zap.Logger,
) (*AbandonSweeper, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if abandonAfter <= 0 {
		abandonAfter = defaultAbandonAfter
	}
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AbandonSweeper{
		deliveries:   deliveries,
		broker:       broker,
		logger:       logger,
		interval:     interval,
		abandonAfter: abandonAfter,
		limit:        limit,
		now:          time.Now,
	}, nil
}

func (s *AbandonSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *AbandonSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("abandon sweeper initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("abandon sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *AbandonSweeper) sweep(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.abandonAfter)

	abandoned, err := s.deliveries.AbandonStale(ctx, cutoff, s.limit)
	if err != nil {
		return fmt.Errorf("failed to abandon stale deliveries: %w", err)
	}
	if len(abandoned) == 0 {
		return nil
	}

	s.logger.Info("abandoned stale deliveries",
		zap.Int("count", len(abandoned)),
		zap.Time("cutoff", cutoff),
	)

	for i := range abandoned {
		delivery := abandoned[i]
		if s.metrics != nil {
			s.metrics.IncAbandoned(delivery.Provider.String())
		}
		if s.broker != nil {
			s.broker.Publish(events.KindDeliveryAbandoned, delivery.ClientID, delivery.Provider, delivery)
		}
	}

	return nil
}
