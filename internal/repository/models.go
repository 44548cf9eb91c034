package repository

import (
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
)

// WebhookConfigModel is the persistence model for the webhook_configs table.
type WebhookConfigModel struct {
	ID                        string             `gorm:"type:uuid;primaryKey"`
	ClientID                  string             `gorm:"type:varchar(64);not null"`
	Provider                  domain.Provider    `gorm:"type:varchar(16);not null"`
	URL                       string             `gorm:"type:varchar(2048);not null"`
	Events                    []domain.EventType `gorm:"serializer:json;type:jsonb;not null"`
	Headers                   map[string]string  `gorm:"serializer:json;type:jsonb"`
	RetryPolicy               domain.RetryPolicy `gorm:"embedded;embeddedPrefix:retry_"`
	TimeoutMs                 int                `gorm:"not null;default:10000"`
	EnableSignatureValidation bool               `gorm:"not null;default:false"`
	SecretKey                 string             `gorm:"type:varchar(255)"`
	IsActive                  bool               `gorm:"not null;default:true"`
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

func (WebhookConfigModel) TableName() string {
	return "webhook_configs"
}

// DeliveryModel is the persistence model for the deliveries table.
type DeliveryModel struct {
	ID          string           `gorm:"type:uuid;primaryKey"`
	WebhookID   string           `gorm:"type:uuid;not null"`
	ClientID    string           `gorm:"type:varchar(64);not null"`
	Provider    domain.Provider  `gorm:"type:varchar(16);not null"`
	EventType   domain.EventType `gorm:"type:varchar(40);not null"`
	Payload     string           `gorm:"type:jsonb;not null"`
	Status      domain.Status    `gorm:"type:varchar(20);not null"`
	RetryCount  int              `gorm:"not null;default:0"`
	MaxRetries  int              `gorm:"not null;default:5"`
	NextRetryAt *time.Time
	LastError   *string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// DeliveryLogModel is the persistence model for the delivery_logs table.
type DeliveryLogModel struct {
	ID             string           `gorm:"type:uuid;primaryKey"`
	DeliveryID     string           `gorm:"type:uuid;not null"`
	WebhookID      string           `gorm:"type:uuid;not null"`
	ClientID       string           `gorm:"type:varchar(64);not null"`
	Provider       domain.Provider  `gorm:"type:varchar(16);not null"`
	EventType      domain.EventType `gorm:"type:varchar(40);not null"`
	AttemptNumber  int              `gorm:"not null"`
	RequestBody    *string          `gorm:"type:text"`
	ResponseBody   *string          `gorm:"type:text"`
	HTTPStatus     *int             `gorm:"type:int"`
	ResponseTimeMs *int64           `gorm:"type:bigint"`
	Error          *string          `gorm:"type:text"`
	CreatedAt      time.Time
}

func (DeliveryLogModel) TableName() string {
	return "delivery_logs"
}

func webhookConfigModelFromDomain(c *domain.WebhookConfig) *WebhookConfigModel {
	if c == nil {
		return nil
	}

	return &WebhookConfigModel{
		ID:                        c.ID,
		ClientID:                  c.ClientID,
		Provider:                  c.Provider,
		URL:                       c.URL,
		Events:                    c.Events,
		Headers:                   c.Headers,
		RetryPolicy:               c.RetryPolicy,
		TimeoutMs:                 c.TimeoutMs,
		EnableSignatureValidation: c.EnableSignatureValidation,
		SecretKey:                 c.SecretKey,
		IsActive:                  c.IsActive,
		CreatedAt:                 c.CreatedAt,
		UpdatedAt:                 c.UpdatedAt,
	}
}

func webhookConfigModelToDomain(m *WebhookConfigModel) *domain.WebhookConfig {
	if m == nil {
		return nil
	}

	return &domain.WebhookConfig{
		ID:                        m.ID,
		ClientID:                  m.ClientID,
		Provider:                  m.Provider,
		URL:                       m.URL,
		Events:                    m.Events,
		Headers:                   m.Headers,
		RetryPolicy:               m.RetryPolicy,
		TimeoutMs:                 m.TimeoutMs,
		EnableSignatureValidation: m.EnableSignatureValidation,
		SecretKey:                 m.SecretKey,
		IsActive:                  m.IsActive,
		CreatedAt:                 m.CreatedAt,
		UpdatedAt:                 m.UpdatedAt,
	}
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:          d.ID,
		WebhookID:   d.WebhookID,
		ClientID:    d.ClientID,
		Provider:    d.Provider,
		EventType:   d.EventType,
		Payload:     d.Payload,
		Status:      d.Status,
		RetryCount:  d.RetryCount,
		MaxRetries:  d.MaxRetries,
		NextRetryAt: d.NextRetryAt,
		LastError:   d.LastError,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:          m.ID,
		WebhookID:   m.WebhookID,
		ClientID:    m.ClientID,
		Provider:    m.Provider,
		EventType:   m.EventType,
		Payload:     m.Payload,
		Status:      m.Status,
		RetryCount:  m.RetryCount,
		MaxRetries:  m.MaxRetries,
		NextRetryAt: m.NextRetryAt,
		LastError:   m.LastError,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func deliveryLogModelFromDomain(l *domain.DeliveryLog) *DeliveryLogModel {
	if l == nil {
		return nil
	}

	return &DeliveryLogModel{
		ID:             l.ID,
		DeliveryID:     l.DeliveryID,
		WebhookID:      l.WebhookID,
		ClientID:       l.ClientID,
		Provider:       l.Provider,
		EventType:      l.EventType,
		AttemptNumber:  l.AttemptNumber,
		RequestBody:    l.RequestBody,
		ResponseBody:   l.ResponseBody,
		HTTPStatus:     l.HTTPStatus,
		ResponseTimeMs: l.ResponseTimeMs,
		Error:          l.Error,
		CreatedAt:      l.CreatedAt,
	}
}

func deliveryLogModelToDomain(m *DeliveryLogModel) *domain.DeliveryLog {
	if m == nil {
		return nil
	}

	return &domain.DeliveryLog{
		ID:             m.ID,
		DeliveryID:     m.DeliveryID,
		WebhookID:      m.WebhookID,
		ClientID:       m.ClientID,
		Provider:       m.Provider,
		EventType:      m.EventType,
		AttemptNumber:  m.AttemptNumber,
		RequestBody:    m.RequestBody,
		ResponseBody:   m.ResponseBody,
		HTTPStatus:     m.HTTPStatus,
		ResponseTimeMs: m.ResponseTimeMs,
		Error:          m.Error,
		CreatedAt:      m.CreatedAt,
	}
}
