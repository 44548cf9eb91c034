package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Provider represents an integrated delivery platform.
type Provider string

const (
	ProviderCareem    Provider = "CAREEM"
	ProviderTalabat   Provider = "TALABAT"
	ProviderDeliveroo Provider = "DELIVEROO"
	ProviderJahez     Provider = "JAHEZ"
	ProviderCustom    Provider = "CUSTOM"
)

func (p Provider) String() string { return string(p) }

func (p Provider) IsValid() bool {
	switch p {
	case ProviderCareem, ProviderTalabat, ProviderDeliveroo, ProviderJahez, ProviderCustom:
		return true
	}
	return false
}

func ParseProviderFromString(s string) (Provider, error) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid provider %q", ErrValidation, s)
	}
	return p, nil
}

// Providers returns all supported providers in a stable order.
func Providers() []Provider {
	return []Provider{ProviderCareem, ProviderTalabat, ProviderDeliveroo, ProviderJahez, ProviderCustom}
}

// EventType represents a platform event a webhook can subscribe to.
type EventType string

const (
	EventOrderCreated            EventType = "order_created"
	EventOrderUpdated            EventType = "order_updated"
	EventOrderCancelled          EventType = "order_cancelled"
	EventIntegrationStatus       EventType = "integration_status_changed"
	EventMenuSyncStarted         EventType = "menu_sync_started"
	EventMenuSyncCompleted       EventType = "menu_sync_completed"
	EventMenuSyncFailed          EventType = "menu_sync_failed"
	EventWebhookReceived         EventType = "webhook_received"
	EventProviderStatusHeartbeat EventType = "provider_status_heartbeat"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventOrderCreated, EventOrderUpdated, EventOrderCancelled,
		EventIntegrationStatus, EventMenuSyncStarted, EventMenuSyncCompleted,
		EventMenuSyncFailed, EventWebhookReceived, EventProviderStatusHeartbeat:
		return true
	}
	return false
}

func ParseEventTypeFromString(s string) (EventType, error) {
	e := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !e.IsValid() {
		return "", fmt.Errorf("%w: invalid event type %q", ErrValidation, s)
	}
	return e, nil
}

// Webhook configuration bounds.
const (
	MinClientIDLength = 3
	MinTimeoutMs      = 1000
	MaxTimeoutMs      = 60000
	MinMaxRetries     = 0
	MaxMaxRetries     = 10
)

// Retry policy defaults applied when a config omits them.
const (
	DefaultMaxRetries        = 5
	DefaultInitialDelayMs    = 1000
	DefaultMaxDelayMs        = 60000
	DefaultBackoffMultiplier = 2.0
)

// RetryPolicy describes the exponential backoff applied to failed deliveries.
type RetryPolicy struct {
	MaxRetries        int     `json:"maxRetries"`
	InitialDelayMs    int     `json:"initialDelayMs"`
	MaxDelayMs        int     `json:"maxDelayMs"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
}

// Normalize fills unset policy fields with defaults. MaxRetries zero is a
// legal value (no automatic retries), so only negative values are replaced.
func (p RetryPolicy) Normalize() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.InitialDelayMs <= 0 {
		p.InitialDelayMs = DefaultInitialDelayMs
	}
	if p.MaxDelayMs <= 0 {
		p.MaxDelayMs = DefaultMaxDelayMs
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = DefaultBackoffMultiplier
	}
	return p
}

func (p RetryPolicy) Validate() error {
	if p.MaxRetries < MinMaxRetries || p.MaxRetries > MaxMaxRetries {
		return fmt.Errorf("%w: maxRetries must be between %d and %d (got %d)", ErrValidation, MinMaxRetries, MaxMaxRetries, p.MaxRetries)
	}
	if p.MaxDelayMs < p.InitialDelayMs {
		return fmt.Errorf("%w: maxDelayMs must not be below initialDelayMs", ErrValidation)
	}
	return nil
}

// Delay returns the backoff delay before the given retry (1-based).
func (p RetryPolicy) Delay(retryNumber int) time.Duration {
	if retryNumber < 1 {
		retryNumber = 1
	}

	delayMs := float64(p.InitialDelayMs)
	maxMs := float64(p.MaxDelayMs)
	for i := 1; i < retryNumber; i++ {
		delayMs *= p.BackoffMultiplier
		if delayMs >= maxMs {
			delayMs = maxMs
			break
		}
	}
	if delayMs > maxMs {
		delayMs = maxMs
	}

	return time.Duration(delayMs) * time.Millisecond
}

// WebhookConfig is a client-registered endpoint that receives platform events.
type WebhookConfig struct {
	ID                        string            `gorm:"type:uuid;primaryKey"`
	ClientID                  string            `gorm:"type:varchar(64);not null"`
	Provider                  Provider          `gorm:"type:varchar(16);not null"`
	URL                       string            `gorm:"type:varchar(2048);not null"`
	Events                    []EventType       `gorm:"serializer:json;type:jsonb;not null"`
	Headers                   map[string]string `gorm:"serializer:json;type:jsonb"`
	RetryPolicy               RetryPolicy       `gorm:"embedded;embeddedPrefix:retry_"`
	TimeoutMs                 int               `gorm:"not null;default:10000"`
	EnableSignatureValidation bool              `gorm:"not null;default:false"`
	SecretKey                 string            `gorm:"type:varchar(255)"`
	IsActive                  bool              `gorm:"not null;default:true"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (c *WebhookConfig) Validate() error {
	if len(strings.TrimSpace(c.ClientID)) < MinClientIDLength {
		return fmt.Errorf("%w: clientId must be at least %d characters", ErrValidation, MinClientIDLength)
	}
	if !c.Provider.IsValid() {
		return fmt.Errorf("%w: invalid provider %q", ErrValidation, c.Provider)
	}
	if err := ValidateWebhookURL(c.URL); err != nil {
		return err
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("%w: at least one event type is required", ErrValidation)
	}
	for _, event := range c.Events {
		if !event.IsValid() {
			return fmt.Errorf("%w: invalid event type %q", ErrValidation, event)
		}
	}
	if c.TimeoutMs < MinTimeoutMs || c.TimeoutMs > MaxTimeoutMs {
		return fmt.Errorf("%w: timeoutMs must be between %d and %d (got %d)", ErrValidation, MinTimeoutMs, MaxTimeoutMs, c.TimeoutMs)
	}
	if err := c.RetryPolicy.Validate(); err != nil {
		return err
	}
	if c.EnableSignatureValidation && strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: secretKey is required when signature validation is enabled", ErrValidation)
	}
	return nil
}

// Subscribes reports whether the config listens for the given event type.
func (c *WebhookConfig) Subscribes(event EventType) bool {
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}

// ValidateWebhookURL enforces the HTTPS-only endpoint rule.
func ValidateWebhookURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %v", ErrValidation, err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: url must use https", ErrValidation)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: url host is required", ErrValidation)
	}
	return nil
}
