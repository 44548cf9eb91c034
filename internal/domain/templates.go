package domain

import "fmt"

// ProviderTemplate describes the canonical payload shape and defaults for a
// delivery platform, used to pre-fill webhook registrations.
type ProviderTemplate struct {
	Provider       Provider          `json:"provider"`
	DisplayName    string            `json:"displayName"`
	Events         []EventType       `json:"events"`
	SamplePayload  string            `json:"samplePayload"`
	DefaultHeaders map[string]string `json:"defaultHeaders"`
	DocsURL        string            `json:"docsUrl,omitempty"`
}

var providerTemplates = map[Provider]ProviderTemplate{
	ProviderCareem: {
		Provider:    ProviderCareem,
		DisplayName: "Careem Now",
		Events: []EventType{
			EventOrderCreated, EventOrderUpdated, EventOrderCancelled,
			EventMenuSyncStarted, EventMenuSyncCompleted, EventMenuSyncFailed,
		},
		SamplePayload:  `{"event":"order_created","order":{"id":"ord-1001","branchId":"br-12","status":"NEW","total":74.50,"currency":"AED"}}`,
		DefaultHeaders: map[string]string{"X-Careem-Source": "webhook-relay"},
	},
	ProviderTalabat: {
		Provider:    ProviderTalabat,
		DisplayName: "Talabat",
		Events: []EventType{
			EventOrderCreated, EventOrderUpdated, EventOrderCancelled,
			EventIntegrationStatus,
		},
		SamplePayload:  `{"event":"order_created","order":{"token":"tlb-55821","vendorCode":"v-204","state":"ACCEPTED","amount":112.00,"currency":"KWD"}}`,
		DefaultHeaders: map[string]string{"X-Talabat-Source": "webhook-relay"},
	},
	ProviderDeliveroo: {
		Provider:    ProviderDeliveroo,
		DisplayName: "Deliveroo",
		Events: []EventType{
			EventOrderCreated, EventOrderUpdated, EventOrderCancelled,
			EventMenuSyncCompleted, EventMenuSyncFailed,
		},
		SamplePayload:  `{"event":"order_created","order":{"id":"dlv-88213","locationId":"loc-7","status":"placed","payment":{"total":2350,"currency":"GBP"}}}`,
		DefaultHeaders: map[string]string{"X-Deliveroo-Source": "webhook-relay"},
	},
	ProviderJahez: {
		Provider:    ProviderJahez,
		DisplayName: "Jahez",
		Events: []EventType{
			EventOrderCreated, EventOrderUpdated, EventOrderCancelled,
		},
		SamplePayload:  `{"event":"order_created","order":{"jahezId":"jhz-4471","branch":"riyadh-01","status":"N","finalPrice":96.00,"currency":"SAR"}}`,
		DefaultHeaders: map[string]string{"X-Jahez-Source": "webhook-relay"},
	},
	ProviderCustom: {
		Provider:    ProviderCustom,
		DisplayName: "Custom Integration",
		Events: []EventType{
			EventOrderCreated, EventOrderUpdated, EventOrderCancelled,
			EventIntegrationStatus, EventMenuSyncStarted, EventMenuSyncCompleted,
			EventMenuSyncFailed, EventWebhookReceived, EventProviderStatusHeartbeat,
		},
		SamplePayload: `{"event":"webhook_received","payload":{}}`,
	},
}

// TemplateForProvider returns the registration template for a provider.
func TemplateForProvider(p Provider) (ProviderTemplate, error) {
	template, ok := providerTemplates[p]
	if !ok {
		return ProviderTemplate{}, fmt.Errorf("%w: no template for provider %q", ErrNotFound, p)
	}
	return template, nil
}
