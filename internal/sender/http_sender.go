package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/signature"
	"github.com/go-resty/resty/v2"
)

const (
	defaultSendTimeout  = 10 * time.Second
	defaultProbeTimeout = 5 * time.Second
)

// HTTPSender delivers webhook payloads to client-registered HTTPS endpoints.
type HTTPSender struct {
	client *resty.Client
	now    func() time.Time
}

func NewHTTPSender() *HTTPSender {
	client := resty.New()
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", "webhook-relay/1.0")

	return NewHTTPSenderWithClient(client)
}

func NewHTTPSenderWithClient(client *resty.Client) *HTTPSender {
	if client == nil {
		client = resty.New()
	}
	client.SetRetryCount(0)

	return &HTTPSender{
		client: client,
		now:    time.Now,
	}
}

// Send posts the delivery payload to the config's endpoint. The config's
// timeout bounds the whole call; custom headers are applied before the
// signature headers so a client cannot shadow them.
func (s *HTTPSender) Send(ctx context.Context, config domain.WebhookConfig, delivery domain.Delivery) (*SendResult, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("sender is not initialized")
	}
	if err := domain.ValidateWebhookURL(config.URL); err != nil {
		return nil, fmt.Errorf("invalid delivery endpoint: %w", err)
	}

	timeout := time.Duration(config.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Webhook-Event", delivery.EventType.String()).
		SetHeader("X-Webhook-Provider", strings.ToLower(delivery.Provider.String())).
		SetBody(delivery.Payload)

	for key, value := range config.Headers {
		req.SetHeader(key, value)
	}

	if config.EnableSignatureValidation {
		signedAt := s.now().UTC()
		sig, err := signature.Sign(config.SecretKey, delivery.ID, signedAt, []byte(delivery.Payload))
		if err != nil {
			return nil, &SendError{
				Message:   "failed to sign payload",
				Transient: false,
				Cause:     err,
			}
		}
		req.SetHeader(signature.HeaderSignature, sig)
		req.SetHeader(signature.HeaderTimestamp, fmt.Sprintf("%d", signedAt.Unix()))
		req.SetHeader(signature.HeaderDeliveryID, delivery.ID)
	}

	start := s.now()
	response, err := req.Post(config.URL)
	elapsed := s.now().Sub(start)

	if err != nil {
		return nil, &SendError{
			Message:   "delivery request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &SendError{
			Message:   "endpoint returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResult{
			StatusCode:   statusCode,
			Body:         responseBody,
			ResponseTime: elapsed,
		}, nil
	}

	return nil, &SendError{
		StatusCode: statusCode,
		Message:    endpointErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

// Probe performs a synchronous test delivery against an arbitrary URL and
// reports timing and outcome without touching the retry queue.
func (s *HTTPSender) Probe(ctx context.Context, url string, payload string) *ProbeResult {
	if err := domain.ValidateWebhookURL(url); err != nil {
		return &ProbeResult{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	req := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if payload != "" {
		req.SetBody(payload)
	}

	start := s.now()
	response, err := req.Post(url)
	elapsed := s.now().Sub(start)

	if err != nil {
		return &ProbeResult{
			ResponseTime: elapsed,
			Error:        err.Error(),
		}
	}

	return &ProbeResult{
		Reachable:    true,
		StatusCode:   response.StatusCode(),
		Body:         strings.TrimSpace(response.String()),
		ResponseTime: elapsed,
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func endpointErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("endpoint returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
