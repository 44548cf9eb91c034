package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/deliverhub/webhook-relay/internal/service"
	"github.com/gofiber/fiber/v2"
)

type DeliveryService interface {
	ListQueue(ctx context.Context, params repository.ListParams) ([]domain.Delivery, int64, error)
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	ListLogs(ctx context.Context, params repository.ListParams) ([]domain.DeliveryLog, int64, error)
	LogsForDelivery(ctx context.Context, deliveryID string) ([]domain.DeliveryLog, error)
	Stats(ctx context.Context, params repository.ListParams) (*service.DeliveryStats, error)
	Metrics(ctx context.Context, params repository.ListParams) ([]repository.MetricRow, error)
	Retry(ctx context.Context, id string) (*domain.Delivery, error)
	BulkRetry(ctx context.Context, ids []string) (*service.BulkRetryResult, error)
	Cancel(ctx context.Context, id string) (*domain.Delivery, error)
	Remove(ctx context.Context, id string) error
}

type DeliveryHandler struct {
	service DeliveryService
}

func NewDeliveryHandler(service DeliveryService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

type deliveryResponse struct {
	ID          string     `json:"id"`
	WebhookID   string     `json:"webhookId"`
	ClientID    string     `json:"clientId"`
	Provider    string     `json:"provider"`
	EventType   string     `json:"eventType"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`
	Progress    float64    `json:"progress"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
	LastError   *string    `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

type deliveryLogResponse struct {
	ID             string    `json:"id"`
	DeliveryID     string    `json:"deliveryId"`
	WebhookID      string    `json:"webhookId"`
	ClientID       string    `json:"clientId"`
	Provider       string    `json:"provider"`
	EventType      string    `json:"eventType"`
	AttemptNumber  int       `json:"attemptNumber"`
	RequestBody    *string   `json:"requestBody,omitempty"`
	ResponseBody   *string   `json:"responseBody,omitempty"`
	HTTPStatus     *int      `json:"httpStatus,omitempty"`
	ResponseTimeMs *int64    `json:"responseTimeMs,omitempty"`
	Error          *string   `json:"error,omitempty"`
	Success        bool      `json:"success"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listLogsResponse struct {
	Data []deliveryLogResponse `json:"data"`
	Meta listMeta              `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type bulkRetryRequest struct {
	LogIDs []string `json:"logIds"`
}

func (h *DeliveryHandler) ListQueue(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	deliveries, total, err := h.service.ListQueue(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: toDeliveryResponses(deliveries),
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	delivery, err := h.service.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) ListLogs(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	logs, total, err := h.service.ListLogs(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listLogsResponse{
		Data: toLogResponses(logs),
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *DeliveryHandler) LogsForDelivery(c *fiber.Ctx) error {
	logs, err := h.service.LogsForDelivery(c.Context(), c.Params("deliveryId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toLogResponses(logs))
}

func (h *DeliveryHandler) Stats(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	stats, err := h.service.Stats(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(stats)
}

func (h *DeliveryHandler) Metrics(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	rows, err := h.service.Metrics(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(rows)
}

func (h *DeliveryHandler) Retry(c *fiber.Ctx) error {
	delivery, err := h.service.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) BulkRetry(c *fiber.Ctx) error {
	var req bulkRetryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ids := make([]string, 0, len(req.LogIDs))
	for _, id := range req.LogIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}

	result, err := h.service.BulkRetry(c.Context(), ids)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *DeliveryHandler) Cancel(c *fiber.Ctx) error {
	delivery, err := h.service.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) Remove(c *fiber.Ctx) error {
	if err := h.service.Remove(c.Context(), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func toDeliveryResponses(deliveries []domain.Delivery) []deliveryResponse {
	responses := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		responses = append(responses, toDeliveryResponse(&deliveries[i]))
	}
	return responses
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:          d.ID,
		WebhookID:   d.WebhookID,
		ClientID:    d.ClientID,
		Provider:    d.Provider.String(),
		EventType:   d.EventType.String(),
		Payload:     d.Payload,
		Status:      d.Status.String(),
		RetryCount:  d.RetryCount,
		MaxRetries:  d.MaxRetries,
		Progress:    d.Progress(),
		NextRetryAt: d.NextRetryAt,
		LastError:   d.LastError,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toLogResponses(logs []domain.DeliveryLog) []deliveryLogResponse {
	responses := make([]deliveryLogResponse, 0, len(logs))
	for i := range logs {
		log := logs[i]
		responses = append(responses, deliveryLogResponse{
			ID:             log.ID,
			DeliveryID:     log.DeliveryID,
			WebhookID:      log.WebhookID,
			ClientID:       log.ClientID,
			Provider:       log.Provider.String(),
			EventType:      log.EventType.String(),
			AttemptNumber:  log.AttemptNumber,
			RequestBody:    log.RequestBody,
			ResponseBody:   log.ResponseBody,
			HTTPStatus:     log.HTTPStatus,
			ResponseTimeMs: log.ResponseTimeMs,
			Error:          log.Error,
			Success:        log.Succeeded(),
			CreatedAt:      log.CreatedAt,
		})
	}
	return responses
}
