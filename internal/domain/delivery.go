package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a delivery in the retry queue.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusDelivered  Status = "DELIVERED"
	StatusFailed     Status = "FAILED"
	StatusAbandoned  Status = "ABANDONED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusDelivered, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic attempt will happen.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusAbandoned
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Delivery is a retry-eligible webhook delivery chain: one event routed to
// one registered endpoint, carried through attempts until it is delivered,
// exhausts its retries, or is abandoned.
type Delivery struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	WebhookID   string    `gorm:"type:uuid;not null"`
	ClientID    string    `gorm:"type:varchar(64);not null"`
	Provider    Provider  `gorm:"type:varchar(16);not null"`
	EventType   EventType `gorm:"type:varchar(40);not null"`
	Payload     string    `gorm:"type:jsonb;not null"`
	Status      Status    `gorm:"type:varchar(20);not null"`
	RetryCount  int       `gorm:"not null;default:0"`
	MaxRetries  int       `gorm:"not null;default:5"`
	NextRetryAt *time.Time
	LastError   *string `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d *Delivery) Validate() error {
	if strings.TrimSpace(d.WebhookID) == "" {
		return fmt.Errorf("%w: webhookId is required", ErrValidation)
	}
	if strings.TrimSpace(d.ClientID) == "" {
		return fmt.Errorf("%w: clientId is required", ErrValidation)
	}
	if !d.Provider.IsValid() {
		return fmt.Errorf("%w: invalid provider %q", ErrValidation, d.Provider)
	}
	if !d.EventType.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, d.EventType)
	}
	if strings.TrimSpace(d.Payload) == "" {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if d.MaxRetries < MinMaxRetries || d.MaxRetries > MaxMaxRetries {
		return fmt.Errorf("%w: maxRetries must be between %d and %d (got %d)", ErrValidation, MinMaxRetries, MaxMaxRetries, d.MaxRetries)
	}
	if d.RetryCount < 0 || d.RetryCount > d.MaxRetries {
		return fmt.Errorf("%w: retryCount must be between 0 and maxRetries (got %d)", ErrValidation, d.RetryCount)
	}
	return nil
}

// CanRetry reports whether a manual retry command is accepted. Processing
// deliveries already have an attempt in flight and terminal deliveries are
// done; everything else may be re-dispatched by an operator.
func (d *Delivery) CanRetry() bool {
	return d.Status == StatusPending || d.Status == StatusFailed
}

// CanCancel reports whether the in-flight attempt can be canceled.
// Only processing deliveries accept the cancel command.
func (d *Delivery) CanCancel() bool {
	return d.Status == StatusProcessing
}

// CanRemove reports whether the delivery may be deleted from the queue.
func (d *Delivery) CanRemove() bool {
	return d.Status == StatusAbandoned
}

// Progress returns retry exhaustion as a percentage, clamped to [0, 100].
// A zero MaxRetries delivery has no retry budget and reports 100.
func (d *Delivery) Progress() float64 {
	if d.MaxRetries <= 0 {
		return 100
	}
	progress := float64(d.RetryCount) / float64(d.MaxRetries) * 100
	if progress > 100 {
		return 100
	}
	if progress < 0 {
		return 0
	}
	return progress
}
