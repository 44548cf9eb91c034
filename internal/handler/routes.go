package handler

import (
	"github.com/deliverhub/webhook-relay/internal/events"
	"github.com/gofiber/fiber/v2"
)

// RegisterWebhookRoutes mounts the full /v1/webhooks surface. Specific
// paths (retry-queue, templates, ...) are registered before the bare :id
// delete so fiber matches them first.
func RegisterWebhookRoutes(
	router fiber.Router,
	webhooks WebhookService,
	deliveries DeliveryService,
	broker *events.Broker,
) error {
	wh, err := NewWebhookHandler(webhooks)
	if err != nil {
		return err
	}
	dh, err := NewDeliveryHandler(deliveries)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/webhooks")

	v1.Post("/register", wh.Register)
	v1.Get("/config", wh.ListConfigs)
	v1.Get("/config/:id", wh.GetConfig)
	v1.Post("/config/:clientId", wh.UpdateClientConfigs)
	v1.Post("/dispatch", wh.Dispatch)
	v1.Post("/test", wh.TestEndpoint)
	v1.Post("/validate-url", wh.ValidateURL)
	v1.Get("/templates/:provider", wh.Template)
	v1.Get("/security/:clientId", wh.Security)

	v1.Get("/logs", dh.ListLogs)
	v1.Get("/logs/:deliveryId", dh.LogsForDelivery)
	v1.Get("/stats", dh.Stats)
	v1.Get("/metrics", dh.Metrics)
	v1.Post("/retry/:id", dh.Retry)
	v1.Post("/bulk-retry", dh.BulkRetry)
	v1.Get("/retry-queue", dh.ListQueue)
	v1.Get("/retry-queue/:id", dh.GetDelivery)
	v1.Delete("/retry-queue/:id", dh.Remove)
	v1.Post("/retry-queue/:id/cancel", dh.Cancel)

	if broker != nil {
		v1.Get("/events", NewEventsHandler(broker))
	}

	v1.Delete("/:id", wh.DeleteConfig)

	return nil
}
