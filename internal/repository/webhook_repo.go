package repository

import (
	"context"
	"errors"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"gorm.io/gorm"
)

type WebhookRepository interface {
	Create(ctx context.Context, c *domain.WebhookConfig) error
	GetByID(ctx context.Context, id string) (*domain.WebhookConfig, error)
	List(ctx context.Context, clientID string) ([]domain.WebhookConfig, error)
	ListActiveForEvent(ctx context.Context, event domain.EventType, provider *domain.Provider, clientID string) ([]domain.WebhookConfig, error)
	Update(ctx context.Context, c *domain.WebhookConfig) error
	Delete(ctx context.Context, id string) error
}

type GormWebhookRepo struct {
	db *gorm.DB
}

func NewGormWebhookRepo(db *gorm.DB) *GormWebhookRepo {
	return &GormWebhookRepo{db: db}
}

func (r *GormWebhookRepo) Create(ctx context.Context, c *domain.WebhookConfig) error {
	model := webhookConfigModelFromDomain(c)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *webhookConfigModelToDomain(model)
	}
	return nil
}

func (r *GormWebhookRepo) GetByID(ctx context.Context, id string) (*domain.WebhookConfig, error) {
	var model WebhookConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return webhookConfigModelToDomain(&model), nil
}

func (r *GormWebhookRepo) List(ctx context.Context, clientID string) ([]domain.WebhookConfig, error) {
	query := r.db.WithContext(ctx).Model(&WebhookConfigModel{})
	if clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}

	var models []WebhookConfigModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	configs := make([]domain.WebhookConfig, 0, len(models))
	for i := range models {
		configs = append(configs, *webhookConfigModelToDomain(&models[i]))
	}

	return configs, nil
}

// ListActiveForEvent returns active configs whose event subscriptions include
// the given event. The events column is JSONB, so the subscription check runs
// as a containment query.
func (r *GormWebhookRepo) ListActiveForEvent(
	ctx context.Context,
	event domain.EventType,
	provider *domain.Provider,
	clientID string,
) ([]domain.WebhookConfig, error) {
	query := r.db.WithContext(ctx).
		Model(&WebhookConfigModel{}).
		Where("is_active = ?", true).
		Where(`events @> ?`, `["`+event.String()+`"]`)

	if provider != nil {
		query = query.Where("provider = ?", *provider)
	}
	if clientID != "" {
		query = query.Where("client_id = ?", clientID)
	}

	var models []WebhookConfigModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	configs := make([]domain.WebhookConfig, 0, len(models))
	for i := range models {
		configs = append(configs, *webhookConfigModelToDomain(&models[i]))
	}

	return configs, nil
}

func (r *GormWebhookRepo) Update(ctx context.Context, c *domain.WebhookConfig) error {
	model := webhookConfigModelFromDomain(c)
	result := r.db.WithContext(ctx).
		Model(&WebhookConfigModel{}).
		Where("id = ?", model.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormWebhookRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&WebhookConfigModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
