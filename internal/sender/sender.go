package sender

import (
	"context"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
)

// Sender is the outbound webhook delivery port.
type Sender interface {
	Send(ctx context.Context, config domain.WebhookConfig, delivery domain.Delivery) (*SendResult, error)
}

// Prober checks endpoint reachability outside the delivery pipeline.
type Prober interface {
	Probe(ctx context.Context, url string, payload string) *ProbeResult
}

// SendResult stores delivery call metadata for audit and persistence.
type SendResult struct {
	StatusCode   int
	Body         string
	ResponseTime time.Duration
}

// ProbeResult is the outcome of a synchronous endpoint probe
// (test delivery or URL validation).
type ProbeResult struct {
	Reachable    bool
	StatusCode   int
	Body         string
	ResponseTime time.Duration
	Error        string
}
