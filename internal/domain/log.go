package domain

import "time"

// DeliveryLog records a single outbound attempt for a delivery.
type DeliveryLog struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	DeliveryID     string    `gorm:"type:uuid;not null"`
	WebhookID      string    `gorm:"type:uuid;not null"`
	ClientID       string    `gorm:"type:varchar(64);not null"`
	Provider       Provider  `gorm:"type:varchar(16);not null"`
	EventType      EventType `gorm:"type:varchar(40);not null"`
	AttemptNumber  int       `gorm:"not null"`
	RequestBody    *string   `gorm:"type:text"`
	ResponseBody   *string   `gorm:"type:text"`
	HTTPStatus     *int      `gorm:"type:int"`
	ResponseTimeMs *int64    `gorm:"type:bigint"`
	Error          *string   `gorm:"type:text"`
	CreatedAt      time.Time
}

// Succeeded reports whether the attempt got a 2xx response.
func (l *DeliveryLog) Succeeded() bool {
	return l.Error == nil && l.HTTPStatus != nil && *l.HTTPStatus >= 200 && *l.HTTPStatus < 300
}
