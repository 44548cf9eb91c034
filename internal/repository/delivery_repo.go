package repository

import (
	"context"
	"errors"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status    *domain.Status
	Provider  *domain.Provider
	EventType *domain.EventType
	ClientID  string
	WebhookID string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

type StatusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	List(ctx context.Context, params ListParams) ([]domain.Delivery, int64, error)
	LockForProcessing(ctx context.Context, id string) (*domain.Delivery, error)
	MarkDelivered(ctx context.Context, id string) error
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	MarkForRetry(ctx context.Context, id string, nextRetryAt time.Time) error
	CancelProcessing(ctx context.Context, id string, reason string) error
	GetDueForRetry(ctx context.Context, limit int) ([]domain.Delivery, error)
	ClearNextRetryAt(ctx context.Context, id string) error
	AbandonStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error)
	Remove(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, params ListParams) ([]StatusCount, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, d *domain.Delivery) error {
	model := deliveryModelFromDomain(d)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if d != nil {
		*d = *deliveryModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, params ListParams) ([]domain.Delivery, int64, error) {
	query := applyDeliveryFilters(r.db.WithContext(ctx).Model(&DeliveryModel{}), params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, total, nil
}

// LockForProcessing claims a pending delivery for an attempt. The claim is a
// single status-guarded update, so of two consumers holding duplicate
// messages exactly one wins; the loser gets nil without error and acks.
func (r *GormDeliveryRepo) LockForProcessing(ctx context.Context, id string) (*domain.Delivery, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("status", domain.StatusProcessing)
	if result.Error != nil {
		return nil, result.Error
	}

	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if result.RowsAffected == 0 {
		return nil, nil
	}

	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":        domain.StatusDelivered,
			"next_retry_at": nil,
			"last_error":    nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"next_retry_at": nextRetryAt,
			"last_error":    lastError,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"next_retry_at": nil,
			"last_error":    lastError,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// MarkForRetry re-enters the eligible set on a manual retry command.
// Only pending and failed deliveries accept the command.
func (r *GormDeliveryRepo) MarkForRetry(ctx context.Context, id string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusPending, domain.StatusFailed}).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"next_retry_at": nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) CancelProcessing(ctx context.Context, id string, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":        domain.StatusFailed,
			"next_retry_at": nil,
			"last_error":    reason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) GetDueForRetry(ctx context.Context, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.StatusPending, time.Now()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, nil
}

func (r *GormDeliveryRepo) ClearNextRetryAt(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Update("next_retry_at", nil).Error
}

// AbandonStale moves failed deliveries last touched before olderThan into
// the terminal abandoned state and returns the affected rows.
func (r *GormDeliveryRepo) AbandonStale(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusFailed, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}

	if err := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id IN ? AND status = ?", ids, domain.StatusFailed).
		Update("status", domain.StatusAbandoned).Error; err != nil {
		return nil, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		models[i].Status = domain.StatusAbandoned
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, nil
}

func (r *GormDeliveryRepo) Remove(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.StatusAbandoned).
		Delete(&DeliveryModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) CountByStatus(ctx context.Context, params ListParams) ([]StatusCount, error) {
	query := applyDeliveryFilters(r.db.WithContext(ctx).Model(&DeliveryModel{}), params)

	var counts []StatusCount
	err := query.
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func applyDeliveryFilters(query *gorm.DB, params ListParams) *gorm.DB {
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Provider != nil {
		query = query.Where("provider = ?", *params.Provider)
	}
	if params.EventType != nil {
		query = query.Where("event_type = ?", *params.EventType)
	}
	if params.ClientID != "" {
		query = query.Where("client_id = ?", params.ClientID)
	}
	if params.WebhookID != "" {
		query = query.Where("webhook_id = ?", params.WebhookID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}
	return query
}
