package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deliverhub/webhook-relay/internal/domain"
	"github.com/deliverhub/webhook-relay/internal/repository"
	"github.com/deliverhub/webhook-relay/internal/sender"
	"github.com/deliverhub/webhook-relay/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type WebhookService interface {
	Register(ctx context.Context, config *domain.WebhookConfig) (*domain.WebhookConfig, error)
	ListConfigs(ctx context.Context, clientID string) ([]domain.WebhookConfig, error)
	GetConfig(ctx context.Context, id string) (*domain.WebhookConfig, error)
	UpdateClientConfigs(ctx context.Context, clientID string, patch service.ConfigPatch) ([]domain.WebhookConfig, error)
	DeleteConfig(ctx context.Context, id string) error
	Dispatch(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error)
	TestEndpoint(ctx context.Context, url string, provider string, payload string) (*sender.ProbeResult, error)
	ValidateURL(ctx context.Context, url string) (*service.URLValidation, error)
	Template(provider string) (domain.ProviderTemplate, error)
	SecuritySummary(ctx context.Context, clientID string) ([]service.SecurityEntry, error)
}

type WebhookHandler struct {
	service WebhookService
}

func NewWebhookHandler(service WebhookService) (*WebhookHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("webhook service is required")
	}
	return &WebhookHandler{service: service}, nil
}

type registerWebhookRequest struct {
	ClientID                  string              `json:"clientId"`
	Provider                  string              `json:"provider"`
	URL                       string              `json:"url"`
	Events                    []string            `json:"events"`
	Headers                   map[string]string   `json:"headers,omitempty"`
	RetryConfig               *domain.RetryPolicy `json:"retryConfig,omitempty"`
	TimeoutMs                 int                 `json:"timeoutMs,omitempty"`
	EnableSignatureValidation bool                `json:"enableSignatureValidation,omitempty"`
	SecretKey                 string              `json:"secretKey,omitempty"`
}

type webhookConfigResponse struct {
	ID                        string             `json:"id"`
	ClientID                  string             `json:"clientId"`
	Provider                  string             `json:"provider"`
	URL                       string             `json:"url"`
	Events                    []string           `json:"events"`
	Headers                   map[string]string  `json:"headers,omitempty"`
	RetryConfig               domain.RetryPolicy `json:"retryConfig"`
	TimeoutMs                 int                `json:"timeoutMs"`
	EnableSignatureValidation bool               `json:"enableSignatureValidation"`
	IsActive                  bool               `json:"isActive"`
	CreatedAt                 time.Time          `json:"createdAt,omitempty"`
	UpdatedAt                 time.Time          `json:"updatedAt,omitempty"`
}

type testEndpointRequest struct {
	URL      string `json:"url"`
	Provider string `json:"provider,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

type validateURLRequest struct {
	URL string `json:"url"`
}

func (h *WebhookHandler) Register(c *fiber.Ctx) error {
	var req registerWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	config, err := requestToDomainConfig(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Register(c.Context(), config)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toConfigResponse(created))
}

func (h *WebhookHandler) ListConfigs(c *fiber.Ctx) error {
	configs, err := h.service.ListConfigs(c.Context(), c.Query("clientId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toConfigResponses(configs))
}

func (h *WebhookHandler) GetConfig(c *fiber.Ctx) error {
	config, err := h.service.GetConfig(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toConfigResponse(config))
}

func (h *WebhookHandler) UpdateClientConfigs(c *fiber.Ctx) error {
	var patch service.ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	configs, err := h.service.UpdateClientConfigs(c.Context(), c.Params("clientId"), patch)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toConfigResponses(configs))
}

func (h *WebhookHandler) DeleteConfig(c *fiber.Ctx) error {
	if err := h.service.DeleteConfig(c.Context(), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *WebhookHandler) Dispatch(c *fiber.Ctx) error {
	var req service.DispatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.Dispatch(c.Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *WebhookHandler) TestEndpoint(c *fiber.Ctx) error {
	var req testEndpointRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.TestEndpoint(c.Context(), req.URL, req.Provider, req.Payload)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *WebhookHandler) ValidateURL(c *fiber.Ctx) error {
	var req validateURLRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	validation, err := h.service.ValidateURL(c.Context(), req.URL)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(validation)
}

func (h *WebhookHandler) Template(c *fiber.Ctx) error {
	template, err := h.service.Template(c.Params("provider"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(template)
}

func (h *WebhookHandler) Security(c *fiber.Ctx) error {
	entries, err := h.service.SecuritySummary(c.Context(), c.Params("clientId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(entries)
}

func requestToDomainConfig(req registerWebhookRequest) (*domain.WebhookConfig, error) {
	events := make([]domain.EventType, 0, len(req.Events))
	for _, raw := range req.Events {
		event, err := domain.ParseEventTypeFromString(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	provider, err := domain.ParseProviderFromString(req.Provider)
	if err != nil {
		return nil, err
	}

	config := &domain.WebhookConfig{
		ClientID:                  strings.TrimSpace(req.ClientID),
		Provider:                  provider,
		URL:                       strings.TrimSpace(req.URL),
		Events:                    events,
		Headers:                   req.Headers,
		TimeoutMs:                 req.TimeoutMs,
		EnableSignatureValidation: req.EnableSignatureValidation,
		SecretKey:                 strings.TrimSpace(req.SecretKey),
	}
	if req.RetryConfig != nil {
		config.RetryPolicy = *req.RetryConfig
	}

	return config, nil
}

func toConfigResponses(configs []domain.WebhookConfig) []webhookConfigResponse {
	responses := make([]webhookConfigResponse, 0, len(configs))
	for i := range configs {
		responses = append(responses, toConfigResponse(&configs[i]))
	}
	return responses
}

func toConfigResponse(config *domain.WebhookConfig) webhookConfigResponse {
	if config == nil {
		return webhookConfigResponse{}
	}

	events := make([]string, 0, len(config.Events))
	for _, event := range config.Events {
		events = append(events, event.String())
	}

	return webhookConfigResponse{
		ID:                        config.ID,
		ClientID:                  config.ClientID,
		Provider:                  config.Provider.String(),
		URL:                       config.URL,
		Events:                    events,
		Headers:                   config.Headers,
		RetryConfig:               config.RetryPolicy,
		TimeoutMs:                 config.TimeoutMs,
		EnableSignatureValidation: config.EnableSignatureValidation,
		IsActive:                  config.IsActive,
		CreatedAt:                 config.CreatedAt,
		UpdatedAt:                 config.UpdatedAt,
	}
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:      c.QueryInt("page", defaultPage),
		PageSize:  c.QueryInt("pageSize", defaultPageSize),
		ClientID:  strings.TrimSpace(c.Query("clientId")),
		WebhookID: strings.TrimSpace(c.Query("webhookId")),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawProvider := strings.TrimSpace(c.Query("provider")); rawProvider != "" {
		provider, err := domain.ParseProviderFromString(rawProvider)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Provider = &provider
	}

	if rawEvent := strings.TrimSpace(c.Query("eventType")); rawEvent != "" {
		event, err := domain.ParseEventTypeFromString(rawEvent)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.EventType = &event
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
