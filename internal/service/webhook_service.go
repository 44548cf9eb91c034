package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/deliverhub/webhook-relay/internal/sender"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultTimeoutMs = 10000

// WebhookService owns config registration and event ingestion. Dispatch fans
// an incoming platform event out to every matching active config as a
// pending delivery.
type WebhookService struct {
	webhooks   repository.WebhookRepository
	deliveries repository.DeliveryRepository
	publisher  queue.Publisher
	prober     sender.Prober
	broker     *events.Broker
	logger     *zap.Logger
	now        func() time.Time
}

// DispatchRequest is an ingested platform event.
type DispatchRequest struct {
	Provider  string          `json:"provider,omitempty"`
	EventType string          `json:"eventType"`
	ClientID  string          `json:"clientId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// DispatchResult summarizes a fan-out.
type DispatchResult struct {
	Matched    int               `json:"matched"`
	Deliveries []domain.Delivery `json:"deliveries"`
}

// ConfigPatch carries partial config updates; nil fields are left untouched.
type ConfigPatch struct {
	WebhookID                 *string             `json:"webhookId,omitempty"`
	URL                       *string             `json:"url,omitempty"`
	Events                    *[]string           `json:"events,omitempty"`
	Headers                   *map[string]string  `json:"headers,omitempty"`
	RetryPolicy               *domain.RetryPolicy `json:"retryConfig,omitempty"`
	TimeoutMs                 *int                `json:"timeoutMs,omitempty"`
	EnableSignatureValidation *bool               `json:"enableSignatureValidation,omitempty"`
	SecretKey                 *string             `json:"secretKey,omitempty"`
	IsActive                  *bool               `json:"isActive,omitempty"`
}

// URLValidation is the outcome of a validate-url check.
type URLValidation struct {
	Valid bool                `json:"valid"`
	Error string              `json:"error,omitempty"`
	Probe *sender.ProbeResult `json:"probe,omitempty"`
}

// SecurityEntry is one config's signature settings with the secret masked.
type SecurityEntry struct {
	WebhookID                 string          `json:"webhookId"`
	Provider                  domain.Provider `json:"provider"`
	URL                       string          `json:"url"`
	EnableSignatureValidation bool            `json:"enableSignatureValidation"`
	SecretKey                 string          `json:"secretKey,omitempty"`
}

func NewWebhookService(
	webhooks repository.WebhookRepository,
	deliveries repository.DeliveryRepository,
	publisher queue.Publisher,
	prober sender.Prober,
	broker *events.Broker,
	logger *zap.Logger,
) (*WebhookService, error) {
	if webhooks == nil {
		return nil, fmt.Errorf("webhook repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookService{
		webhooks:   webhooks,
		deliveries: deliveries,
		publisher:  publisher,
		prober:     prober,
		broker:     broker,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *WebhookService) Register(ctx context.Context, config *domain.WebhookConfig) (*domain.WebhookConfig, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if config == nil {
		return nil, fmt.Errorf("%w: webhook config is required", domain.ErrValidation)
	}

	config.ID = strings.TrimSpace(config.ID)
	if config.ID == "" {
		config.ID = uuid.NewString()
	}
	config.ClientID = strings.TrimSpace(config.ClientID)
	config.URL = strings.TrimSpace(config.URL)
	if config.TimeoutMs == 0 {
		config.TimeoutMs = defaultTimeoutMs
	}
	config.RetryPolicy = config.RetryPolicy.Normalize()
	config.IsActive = true

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if err := s.webhooks.Create(ctx, config); err != nil {
		return nil, err
	}

	s.publish(events.KindConfigUpdated, config.ClientID, config.Provider, config)
	return config, nil
}

func (s *WebhookService) ListConfigs(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
	return s.webhooks.List(ctx, strings.TrimSpace(clientID))
}

func (s *WebhookService) GetConfig(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.GetByID(ctx, strings.TrimSpace(id))
}

// UpdateClientConfigs applies a patch to every config owned by the client,
// or only to the config named by patch.WebhookID.
func (s *WebhookService) UpdateClientConfigs(
	ctx context.Context,
	clientID string,
	patch ConfigPatch,
) ([]domain.WebhookConfig, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	clientID = strings.TrimSpace(clientID)
	if len(clientID) < domain.MinClientIDLength {
		return nil, fmt.Errorf("%w: clientId must be at least %d characters", domain.ErrValidation, domain.MinClientIDLength)
	}

	configs, err := s.webhooks.List(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no webhook configs for client %q", domain.ErrNotFound, clientID)
	}

	// Merge and validate every targeted config before the first write, so a
	// patch that only some configs can absorb leaves all of them untouched.
	merged := make([]domain.WebhookConfig, 0, len(configs))
	for i := range configs {
		config := configs[i]
		if patch.WebhookID != nil && config.ID != strings.TrimSpace(*patch.WebhookID) {
			continue
		}

		if err := applyConfigPatch(&config, patch); err != nil {
			return nil, err
		}
		if err := config.Validate(); err != nil {
			return nil, err
		}
		merged = append(merged, config)
	}

	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: webhook %q does not belong to client %q", domain.ErrNotFound, *patch.WebhookID, clientID)
	}

	updated := make([]domain.WebhookConfig, 0, len(merged))
	for i := range merged {
		config := merged[i]
		if err := s.webhooks.Update(ctx, &config); err != nil {
			return nil, err
		}

		s.publish(events.KindConfigUpdated, config.ClientID, config.Provider, config)
		updated = append(updated, config)
	}
	return updated, nil
}

func (s *WebhookService) DeleteConfig(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: webhook id is required", domain.ErrValidation)
	}
	return s.webhooks.Delete(ctx, strings.TrimSpace(id))
}

// Dispatch fans an event out to every active config subscribed to it. Each
// match becomes one pending delivery pushed to the provider queue; when the
// broker push fails the delivery keeps a due nextRetryAt so the retry
// scanner re-publishes it.
func (s *WebhookService) Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	eventType, err := domain.ParseEventTypeFromString(req.EventType)
	if err != nil {
		return nil, err
	}

	var providerFilter *domain.Provider
	if strings.TrimSpace(req.Provider) != "" {
		p, err := domain.ParseProviderFromString(req.Provider)
		if err != nil {
			return nil, err
		}
		providerFilter = &p
	}

	payload := strings.TrimSpace(string(req.Payload))
	if payload == "" {
		return nil, fmt.Errorf("%w: payload is required", domain.ErrValidation)
	}
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("%w: payload must be valid JSON", domain.ErrValidation)
	}

	configs, err := s.webhooks.ListActiveForEvent(ctx, eventType, providerFilter, strings.TrimSpace(req.ClientID))
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{
		Matched:    len(configs),
		Deliveries: make([]domain.Delivery, 0, len(configs)),
	}

	for i := range configs {
		config := configs[i]
		delivery := domain.Delivery{
			ID:         uuid.NewString(),
			WebhookID:  config.ID,
			ClientID:   config.ClientID,
			Provider:   config.Provider,
			EventType:  eventType,
			Payload:    payload,
			Status:     domain.StatusPending,
			MaxRetries: config.RetryPolicy.Normalize().MaxRetries,
		}

		if err := s.deliveries.Create(ctx, &delivery); err != nil {
			return nil, fmt.Errorf("failed to create delivery for webhook %s: %w", config.ID, err)
		}

		msg := queue.DeliveryMessage{
			DeliveryID: delivery.ID,
			WebhookID:  delivery.WebhookID,
			ClientID:   delivery.ClientID,
			Provider:   delivery.Provider,
			EventType:  delivery.EventType,
		}
		if err := s.publisher.Publish(ctx, queue.QueueName(delivery.Provider), msg); err != nil {
			s.logger.Error("failed to publish delivery, deferring to retry scanner",
				zap.String("deliveryId", delivery.ID),
				zap.String("provider", delivery.Provider.String()),
				zap.Error(err),
			)
			if markErr := s.deliveries.MarkForRetry(ctx, delivery.ID, s.now().UTC()); markErr != nil {
				s.logger.Error("failed to mark unpublished delivery as due",
					zap.String("deliveryId", delivery.ID),
					zap.Error(markErr),
				)
			}
		}

		s.publish(events.KindWebhookReceived, delivery.ClientID, delivery.Provider, delivery)
		result.Deliveries = append(result.Deliveries, delivery)
	}

	return result, nil
}

// TestEndpoint performs a synchronous probe against the given URL with a
// provider-shaped sample payload when none is supplied.
func (s *WebhookService) TestEndpoint(ctx context.Context, url string, provider string, payload string) (*sender.ProbeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.prober == nil {
		return nil, fmt.Errorf("prober is not configured")
	}

	if err := domain.ValidateWebhookURL(url); err != nil {
		return nil, err
	}

	if strings.TrimSpace(payload) == "" {
		p := domain.ProviderCustom
		if strings.TrimSpace(provider) != "" {
			parsed, err := domain.ParseProviderFromString(provider)
			if err != nil {
				return nil, err
			}
			p = parsed
		}
		template, err := domain.TemplateForProvider(p)
		if err != nil {
			return nil, err
		}
		payload = template.SamplePayload
	}

	return s.prober.Probe(ctx, strings.TrimSpace(url), payload), nil
}

// ValidateURL runs the static scheme/host checks and, when they pass, a
// reachability probe.
func (s *WebhookService) ValidateURL(ctx context.Context, url string) (*URLValidation, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := domain.ValidateWebhookURL(url); err != nil {
		return &URLValidation{Valid: false, Error: err.Error()}, nil
	}

	validation := &URLValidation{Valid: true}
	if s.prober != nil {
		probe := s.prober.Probe(ctx, strings.TrimSpace(url), `{"ping":true}`)
		validation.Probe = probe
		if !probe.Reachable {
			validation.Valid = false
			validation.Error = probe.Error
		}
	}
	return validation, nil
}

func (s *WebhookService) Template(provider string) (domain.ProviderTemplate, error) {
	p, err := domain.ParseProviderFromString(provider)
	if err != nil {
		return domain.ProviderTemplate{}, err
	}
	return domain.TemplateForProvider(p)
}

// SecuritySummary lists signature settings for a client with secrets masked.
func (s *WebhookService) SecuritySummary(ctx context.Context, clientID string) ([]SecurityEntry, error) {
	clientID = strings.TrimSpace(clientID)
	if len(clientID) < domain.MinClientIDLength {
		return nil, fmt.Errorf("%w: clientId must be at least %d characters", domain.ErrValidation, domain.MinClientIDLength)
	}

	configs, err := s.webhooks.List(ctx, clientID)
	if err != nil {
		return nil, err
	}

	entries := make([]SecurityEntry, 0, len(configs))
	for i := range configs {
		config := configs[i]
		entries = append(entries, SecurityEntry{
			WebhookID:                 config.ID,
			Provider:                  config.Provider,
			URL:                       config.URL,
			EnableSignatureValidation: config.EnableSignatureValidation,
			SecretKey:                 maskSecret(config.SecretKey),
		})
	}
	return entries, nil
}

func (s *WebhookService) publish(kind events.Kind, clientID string, provider domain.Provider, payload any) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(kind, clientID, provider, payload)
}

func applyConfigPatch(config *domain.WebhookConfig, patch ConfigPatch) error {
	if patch.URL != nil {
		config.URL = strings.TrimSpace(*patch.URL)
	}
	if patch.Events != nil {
		parsed := make([]domain.EventType, 0, len(*patch.Events))
		for _, raw := range *patch.Events {
			event, err := domain.ParseEventTypeFromString(raw)
			if err != nil {
				return err
			}
			parsed = append(parsed, event)
		}
		config.Events = parsed
	}
	if patch.Headers != nil {
		config.Headers = *patch.Headers
	}
	if patch.RetryPolicy != nil {
		config.RetryPolicy = patch.RetryPolicy.Normalize()
	}
	if patch.TimeoutMs != nil {
		config.TimeoutMs = *patch.TimeoutMs
	}
	if patch.EnableSignatureValidation != nil {
		config.EnableSignatureValidation = *patch.EnableSignatureValidation
	}
	if patch.SecretKey != nil {
		config.SecretKey = strings.TrimSpace(*patch.SecretKey)
	}
	if patch.IsActive != nil {
		config.IsActive = *patch.IsActive
	}
	return nil
}

func maskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
