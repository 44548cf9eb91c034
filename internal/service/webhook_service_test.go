package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/queue"
	"github.com/deliverhub/webhook-relay/internal/sender"
	"go.uber.org/zap"
)

func newTestWebhookService(
	t *testing.T,
	webhooks *fakeWebhookRepo,
	deliveries *fakeDeliveryRepo,
	publisher *fakePublisher,
	prober sender.Prober,
) *WebhookService {
	t.Helper()

	svc, err := NewWebhookService(webhooks, deliveries, publisher, prober, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewWebhookService() error = %v", err)
	}
	return svc
}

func validRegistration() *domain.WebhookConfig {
	return &domain.WebhookConfig{
		ClientID: "client-1",
		Provider: domain.ProviderTalabat,
		URL:      "https://partner.example.com/hooks",
		Events:   []domain.EventType{domain.EventOrderCreated, domain.EventOrderCancelled},
	}
}

func TestWebhookServiceRegisterAppliesDefaults(t *testing.T) {
	t.Parallel()

	var created *domain.WebhookConfig
	webhooks := &fakeWebhookRepo{
		createFn: func(ctx context.Context, c *domain.WebhookConfig) error {
			created = c
			return nil
		},
	}

	svc := newTestWebhookService(t, webhooks, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

	config, err := svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if created == nil {
		t.Fatal("config should be persisted")
	}
	if config.ID == "" {
		t.Fatal("config id should be generated")
	}
	if !config.IsActive {
		t.Fatal("new configs should start active")
	}
	if config.TimeoutMs != defaultTimeoutMs {
		t.Fatalf("timeoutMs = %d, want %d", config.TimeoutMs, defaultTimeoutMs)
	}
	if config.RetryPolicy.MaxRetries != domain.DefaultMaxRetries {
		t.Fatalf("maxRetries = %d, want %d", config.RetryPolicy.MaxRetries, domain.DefaultMaxRetries)
	}
}

func TestWebhookServiceRegisterRejectsInvalid(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(c *domain.WebhookConfig)
	}{
		{
			name:   "non-https url",
			mutate: func(c *domain.WebhookConfig) { c.URL = "http://partner.example.com/hooks" },
		},
		{
			name:   "empty events",
			mutate: func(c *domain.WebhookConfig) { c.Events = nil },
		},
		{
			name:   "short client id",
			mutate: func(c *domain.WebhookConfig) { c.ClientID = "ab" },
		},
		{
			name:   "timeout below floor",
			mutate: func(c *domain.WebhookConfig) { c.TimeoutMs = 500 },
		},
		{
			name:   "retries above cap",
			mutate: func(c *domain.WebhookConfig) { c.RetryPolicy.MaxRetries = 11 },
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			webhooks := &fakeWebhookRepo{
				createFn: func(ctx context.Context, c *domain.WebhookConfig) error {
					t.Fatal("invalid config must not be persisted")
					return nil
				},
			}
			svc := newTestWebhookService(t, webhooks, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

			config := validRegistration()
			tc.mutate(config)

			_, err := svc.Register(context.Background(), config)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("Register() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestWebhookServiceDispatchFansOut(t *testing.T) {
	t.Parallel()

	configs := []domain.WebhookConfig{
		{
			ID:          "wh-1",
			ClientID:    "client-1",
			Provider:    domain.ProviderCareem,
			URL:         "https://a.example.com/hooks",
			Events:      []domain.EventType{domain.EventOrderCreated},
			RetryPolicy: domain.RetryPolicy{MaxRetries: 3},
			TimeoutMs:   10000,
			IsActive:    true,
		},
		{
			ID:          "wh-2",
			ClientID:    "client-2",
			Provider:    domain.ProviderTalabat,
			URL:         "https://b.example.com/hooks",
			Events:      []domain.EventType{domain.EventOrderCreated},
			RetryPolicy: domain.RetryPolicy{MaxRetries: 5},
			TimeoutMs:   10000,
			IsActive:    true,
		},
	}

	var createdDeliveries []*domain.Delivery
	var publishedQueues []string

	webhooks := &fakeWebhookRepo{
		listActiveForEventFn: func(ctx context.Context, event domain.EventType, provider *domain.Provider, clientID string) ([]domain.WebhookConfig, error) {
			if event != domain.EventOrderCreated {
				t.Fatalf("event = %s, want order_created", event)
			}
			return configs, nil
		},
	}
	deliveries := &fakeDeliveryRepo{
		createFn: func(ctx context.Context, d *domain.Delivery) error {
			createdDeliveries = append(createdDeliveries, d)
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			publishedQueues = append(publishedQueues, queueName)
			return nil
		},
	}

	svc := newTestWebhookService(t, webhooks, deliveries, publisher, nil)

	result, err := svc.Dispatch(context.Background(), DispatchRequest{
		EventType: "order_created",
		Payload:   json.RawMessage(`{"orderId":"o-1"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if result.Matched != 2 {
		t.Fatalf("matched = %d, want 2", result.Matched)
	}
	if len(createdDeliveries) != 2 {
		t.Fatalf("created deliveries = %d, want 2", len(createdDeliveries))
	}
	if createdDeliveries[0].Status != domain.StatusPending {
		t.Fatalf("delivery status = %s, want PENDING", createdDeliveries[0].Status)
	}
	if createdDeliveries[0].MaxRetries != 3 {
		t.Fatalf("delivery maxRetries = %d, want 3 (from config policy)", createdDeliveries[0].MaxRetries)
	}
	if len(publishedQueues) != 2 || publishedQueues[0] != "careem" || publishedQueues[1] != "talabat" {
		t.Fatalf("published queues = %v, want [careem talabat]", publishedQueues)
	}
}

func TestWebhookServiceDispatchPublishFailureDefersToScanner(t *testing.T) {
	t.Parallel()

	var markedDue bool

	webhooks := &fakeWebhookRepo{
		listActiveForEventFn: func(ctx context.Context, event domain.EventType, provider *domain.Provider, clientID string) ([]domain.WebhookConfig, error) {
			return []domain.WebhookConfig{{
				ID:        "wh-1",
				ClientID:  "client-1",
				Provider:  domain.ProviderCareem,
				URL:       "https://a.example.com/hooks",
				Events:    []domain.EventType{domain.EventOrderCreated},
				TimeoutMs: 10000,
				IsActive:  true,
			}}, nil
		},
	}
	deliveries := &fakeDeliveryRepo{
		markForRetryFn: func(ctx context.Context, id string, nextRetryAt time.Time) error {
			markedDue = true
			return nil
		},
	}
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, queueName string, msg queue.DeliveryMessage) error {
			return errors.New("broker unavailable")
		},
	}

	svc := newTestWebhookService(t, webhooks, deliveries, publisher, nil)

	result, err := svc.Dispatch(context.Background(), DispatchRequest{
		EventType: "order_created",
		Payload:   json.RawMessage(`{"orderId":"o-1"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(result.Deliveries) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(result.Deliveries))
	}
	if !markedDue {
		t.Fatal("unpublished delivery should be marked due for the retry scanner")
	}
}

func TestWebhookServiceDispatchRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	svc := newTestWebhookService(t, &fakeWebhookRepo{}, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

	if _, err := svc.Dispatch(context.Background(), DispatchRequest{
		EventType: "not_an_event",
		Payload:   json.RawMessage(`{}`),
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown event: error = %v, want ErrValidation", err)
	}

	if _, err := svc.Dispatch(context.Background(), DispatchRequest{
		EventType: "order_created",
		Payload:   json.RawMessage(`{not json`),
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad payload: error = %v, want ErrValidation", err)
	}
}

func TestWebhookServiceUpdateClientConfigs(t *testing.T) {
	t.Parallel()

	existing := domain.WebhookConfig{
		ID:        "wh-1",
		ClientID:  "client-1",
		Provider:  domain.ProviderJahez,
		URL:       "https://old.example.com/hooks",
		Events:    []domain.EventType{domain.EventOrderCreated},
		TimeoutMs: 10000,
		IsActive:  true,
	}

	var updated *domain.WebhookConfig
	webhooks := &fakeWebhookRepo{
		listFn: func(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
			return []domain.WebhookConfig{existing}, nil
		},
		updateFn: func(ctx context.Context, c *domain.WebhookConfig) error {
			updated = c
			return nil
		},
	}

	svc := newTestWebhookService(t, webhooks, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

	newURL := "https://new.example.com/hooks"
	inactive := false
	configs, err := svc.UpdateClientConfigs(context.Background(), "client-1", ConfigPatch{
		URL:      &newURL,
		IsActive: &inactive,
	})
	if err != nil {
		t.Fatalf("UpdateClientConfigs() error = %v", err)
	}

	if len(configs) != 1 {
		t.Fatalf("updated configs = %d, want 1", len(configs))
	}
	if updated == nil || updated.URL != newURL {
		t.Fatalf("updated url = %v, want %q", updated, newURL)
	}
	if updated.IsActive {
		t.Fatal("config should be deactivated by the patch")
	}
	// Untouched fields survive patching.
	if updated.Provider != domain.ProviderJahez {
		t.Fatalf("provider = %s, want JAHEZ", updated.Provider)
	}
}

func TestWebhookServiceUpdateClientConfigsWritesNothingOnPartialFailure(t *testing.T) {
	t.Parallel()

	withSecret := domain.WebhookConfig{
		ID:        "wh-1",
		ClientID:  "client-1",
		Provider:  domain.ProviderCareem,
		URL:       "https://careem.example.com/hooks",
		Events:    []domain.EventType{domain.EventOrderCreated},
		TimeoutMs: 10000,
		SecretKey: "whsec_abc123",
		IsActive:  true,
	}
	withoutSecret := domain.WebhookConfig{
		ID:        "wh-2",
		ClientID:  "client-1",
		Provider:  domain.ProviderTalabat,
		URL:       "https://talabat.example.com/hooks",
		Events:    []domain.EventType{domain.EventOrderCreated},
		TimeoutMs: 10000,
		IsActive:  true,
	}

	var updateCalls int
	webhooks := &fakeWebhookRepo{
		listFn: func(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
			return []domain.WebhookConfig{withSecret, withoutSecret}, nil
		},
		updateFn: func(ctx context.Context, c *domain.WebhookConfig) error {
			updateCalls++
			return nil
		},
	}

	svc := newTestWebhookService(t, webhooks, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

	// Enabling signature validation is valid for wh-1 but not for wh-2,
	// which has no secret: the whole patch must be rejected with neither
	// config written.
	enable := true
	_, err := svc.UpdateClientConfigs(context.Background(), "client-1", ConfigPatch{
		EnableSignatureValidation: &enable,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("UpdateClientConfigs() error = %v, want ErrValidation", err)
	}
	if updateCalls != 0 {
		t.Fatalf("update calls = %d, want 0", updateCalls)
	}
}

func TestWebhookServiceUpdateClientConfigsUnknownClient(t *testing.T) {
	t.Parallel()

	webhooks := &fakeWebhookRepo{
		listFn: func(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
			return nil, nil
		},
	}
	svc := newTestWebhookService(t, webhooks, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

	_, err := svc.UpdateClientConfigs(context.Background(), "client-x", ConfigPatch{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateClientConfigs() error = %v, want ErrNotFound", err)
	}
}

func TestWebhookServiceValidateURL(t *testing.T) {
	t.Parallel()

	prober := &fakeProber{
		probeFn: func(ctx context.Context, url string, payload string) *sender.ProbeResult {
			return &sender.ProbeResult{Reachable: true, StatusCode: 204}
		},
	}
	svc := newTestWebhookService(t, &fakeWebhookRepo{}, &fakeDeliveryRepo{}, &fakePublisher{}, prober)

	validation, err := svc.ValidateURL(context.Background(), "https://partner.example.com/hooks")
	if err != nil {
		t.Fatalf("ValidateURL() error = %v", err)
	}
	if !validation.Valid {
		t.Fatalf("validation = %+v, want valid", validation)
	}

	validation, err = svc.ValidateURL(context.Background(), "http://partner.example.com/hooks")
	if err != nil {
		t.Fatalf("ValidateURL() error = %v", err)
	}
	if validation.Valid {
		t.Fatal("plain http url should not validate")
	}
	if validation.Error == "" {
		t.Fatal("invalid url should carry an error message")
	}
}

func TestWebhookServiceTestEndpointUsesProviderTemplate(t *testing.T) {
	t.Parallel()

	var sentPayload string
	prober := &fakeProber{
		probeFn: func(ctx context.Context, url string, payload string) *sender.ProbeResult {
			sentPayload = payload
			return &sender.ProbeResult{Reachable: true, StatusCode: 200}
		},
	}
	svc := newTestWebhookService(t, &fakeWebhookRepo{}, &fakeDeliveryRepo{}, &fakePublisher{}, prober)

	result, err := svc.TestEndpoint(context.Background(), "https://partner.example.com/hooks", "careem", "")
	if err != nil {
		t.Fatalf("TestEndpoint() error = %v", err)
	}
	if !result.Reachable {
		t.Fatal("probe should report reachable")
	}

	template, err := domain.TemplateForProvider(domain.ProviderCareem)
	if err != nil {
		t.Fatalf("TemplateForProvider() error = %v", err)
	}
	if sentPayload != template.SamplePayload {
		t.Fatalf("probe payload = %q, want careem template payload", sentPayload)
	}
}

func TestWebhookServiceSecuritySummaryMasksSecret(t *testing.T) {
	t.Parallel()

	webhooks := &fakeWebhookRepo{
		listFn: func(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
			return []domain.WebhookConfig{{
				ID:                        "wh-1",
				ClientID:                  clientID,
				Provider:                  domain.ProviderCareem,
				URL:                       "https://a.example.com/hooks",
				EnableSignatureValidation: true,
				SecretKey:                 "super-secret-key-1234",
			}}, nil
		},
	}
	svc := newTestWebhookService(t, webhooks, &fakeDeliveryRepo{}, &fakePublisher{}, nil)

	entries, err := svc.SecuritySummary(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("SecuritySummary() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	masked := entries[0].SecretKey
	if strings.Contains(masked, "super-secret") {
		t.Fatalf("secret %q leaked into summary", masked)
	}
	if !strings.HasSuffix(masked, "1234") {
		t.Fatalf("masked secret = %q, want last four characters preserved", masked)
	}
}
