package queue

import (
	"fmt"
	"strings"

	"github.com/deliverhub/webhook-relay/internal/domain"
)

// DeliveryMessage is the broker payload for delivery processing.
type DeliveryMessage struct {
	DeliveryID string           `json:"deliveryId"`
	WebhookID  string           `json:"webhookId"`
	ClientID   string           `json:"clientId,omitempty"`
	Provider   domain.Provider  `json:"provider"`
	EventType  domain.EventType `json:"eventType"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("deliveryId is required")
	}
	if strings.TrimSpace(m.WebhookID) == "" {
		return fmt.Errorf("webhookId is required")
	}
	if !m.Provider.IsValid() {
		return fmt.Errorf("invalid provider %q", m.Provider)
	}
	if !m.EventType.IsValid() {
		return fmt.Errorf("invalid event type %q", m.EventType)
	}
	return nil
}
