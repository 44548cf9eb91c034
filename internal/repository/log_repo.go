package repository

import (
	"context"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"gorm.io/gorm"
)

// StatsRow aggregates delivery log outcomes over a filter window.
type StatsRow struct {
	Total             int64   `gorm:"column:total"`
	Succeeded         int64   `gorm:"column:succeeded"`
	Failed            int64   `gorm:"column:failed"`
	AvgResponseTimeMs float64 `gorm:"column:avg_response_time_ms"`
}

// MetricRow is one per-provider/per-event aggregation bucket.
type MetricRow struct {
	Provider          domain.Provider  `gorm:"column:provider"`
	EventType         domain.EventType `gorm:"column:event_type"`
	Total             int64            `gorm:"column:total"`
	Succeeded         int64            `gorm:"column:succeeded"`
	AvgResponseTimeMs float64          `gorm:"column:avg_response_time_ms"`
}

type LogRepository interface {
	Create(ctx context.Context, l *domain.DeliveryLog) error
	GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryLog, error)
	List(ctx context.Context, params ListParams) ([]domain.DeliveryLog, int64, error)
	Stats(ctx context.Context, params ListParams) (*StatsRow, error)
	Metrics(ctx context.Context, params ListParams) ([]MetricRow, error)
}

type GormLogRepo struct {
	db *gorm.DB
}

func NewGormLogRepo(db *gorm.DB) *GormLogRepo {
	return &GormLogRepo{db: db}
}

func (r *GormLogRepo) Create(ctx context.Context, l *domain.DeliveryLog) error {
	model := deliveryLogModelFromDomain(l)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if l != nil {
		*l = *deliveryLogModelToDomain(model)
	}
	return nil
}

func (r *GormLogRepo) GetByDeliveryID(ctx context.Context, deliveryID string) ([]domain.DeliveryLog, error) {
	var models []DeliveryLogModel
	err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	logs := make([]domain.DeliveryLog, 0, len(models))
	for i := range models {
		logs = append(logs, *deliveryLogModelToDomain(&models[i]))
	}

	return logs, nil
}

func (r *GormLogRepo) List(ctx context.Context, params ListParams) ([]domain.DeliveryLog, int64, error) {
	query := applyLogFilters(r.db.WithContext(ctx).Model(&DeliveryLogModel{}), params)

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

	var models []DeliveryLogModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	logs := make([]domain.DeliveryLog, 0, len(models))
	for i := range models {
		logs = append(logs, *deliveryLogModelToDomain(&models[i]))
	}

	return logs, total, nil
}

func (r *GormLogRepo) Stats(ctx context.Context, params ListParams) (*StatsRow, error) {
	query := applyLogFilters(r.db.WithContext(ctx).Model(&DeliveryLogModel{}), params)

	var row StatsRow
	err := query.
		Select(`COUNT(*) as total,
			COUNT(*) FILTER (WHERE error IS NULL AND http_status BETWEEN 200 AND 299) as succeeded,
			COUNT(*) FILTER (WHERE error IS NOT NULL OR http_status IS NULL OR http_status NOT BETWEEN 200 AND 299) as failed,
			COALESCE(AVG(response_time_ms), 0) as avg_response_time_ms`).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	return &row, nil
}

func (r *GormLogRepo) Metrics(ctx context.Context, params ListParams) ([]MetricRow, error) {
	query := applyLogFilters(r.db.WithContext(ctx).Model(&DeliveryLogModel{}), params)

	var rows []MetricRow
	err := query.
		Select(`provider, event_type,
			COUNT(*) as total,
			COUNT(*) FILTER (WHERE error IS NULL AND http_status BETWEEN 200 AND 299) as succeeded,
			COALESCE(AVG(response_time_ms), 0) as avg_response_time_ms`).
		Group("provider, event_type").
		Order("provider, event_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func applyLogFilters(query *gorm.DB, params ListParams) *gorm.DB {
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
