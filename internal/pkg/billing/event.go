package billing

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/planboard/planboard/app/models"
)

const (
	EventOrderCreated          = "order_created"
	EventSubscriptionCreated   = "subscription_created"
	EventSubscriptionUpdated   = "subscription_updated"
	EventSubscriptionCancelled = "subscription_cancelled"
	EventSubscriptionExpired   = "subscription_expired"
)

const (
	defaultProductName = "Unknown Product"
	defaultVariantName = "Default Variant"
)

// gracePeriod is the local expiry window stamped onto every order and
// subscription touchpoint, independent of the provider's renews_at.
const gracePeriodMonths = 1

// flexID tolerates providers that serialize ids as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }

// WebhookEvent is the provider's webhook envelope.
type WebhookEvent struct {
	Meta struct {
		EventName  string         `json:"event_name"`
		CustomData map[string]any `json:"custom_data,omitempty"`
	} `json:"meta"`
	Data struct {
		ID         flexID          `json:"id"`
		Type       string          `json:"type"`
		Attributes EventAttributes `json:"attributes"`
	} `json:"data"`
}

// EventAttributes is the union of the order and subscription attribute
// shapes. Optional fields stay pointers so missing values are detectable.
type EventAttributes struct {
	OrderNumber    int64  `json:"order_number"`
	UserEmail      string `json:"user_email"`
	UserName       string `json:"user_name"`
	Total          int64  `json:"total"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	TestMode       bool   `json:"test_mode"`
	CreatedAt      string `json:"created_at"`
	FirstOrderItem *struct {
		ProductName string `json:"product_name"`
		VariantName string `json:"variant_name"`
	} `json:"first_order_item"`
	SubscriptionID flexID `json:"subscription_id"`
	CustomerID     flexID `json:"customer_id"`
	ProductID      flexID `json:"product_id"`
	VariantID      flexID `json:"variant_id"`
	RenewsAt       string `json:"renews_at"`
	EndsAt         string `json:"ends_at"`
}

// ParseWebhookEvent decodes a verified raw webhook body into the envelope.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EventName returns the trimmed, lowercased event discriminant.
func (e *WebhookEvent) EventName() string {
	return strings.ToLower(strings.TrimSpace(e.Meta.EventName))
}

// IsSubscriptionEvent reports whether the event is one of the four
// subscription lifecycle events.
func IsSubscriptionEvent(name string) bool {
	switch name {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionCancelled, EventSubscriptionExpired:
		return true
	default:
		return false
	}
}

// NormalizeOrder maps an order_created envelope to an Order record. Missing
// optional product metadata falls back to defaults instead of failing.
func (e *WebhookEvent) NormalizeOrder(now time.Time) *models.Order {
	attrs := e.Data.Attributes

	productName := defaultProductName
	variantName := defaultVariantName
	if attrs.FirstOrderItem != nil {
		if name := strings.TrimSpace(attrs.FirstOrderItem.ProductName); name != "" {
			productName = name
		}
		if name := strings.TrimSpace(attrs.FirstOrderItem.VariantName); name != "" {
			variantName = name
		}
	}

	placedAt := parseProviderTime(attrs.CreatedAt)
	if placedAt == nil {
		placedAt = &now
	}

	return &models.Order{
		OrderID:        e.Data.ID.String(),
		OrderNumber:    attrs.OrderNumber,
		CustomerEmail:  strings.TrimSpace(attrs.UserEmail),
		CustomerName:   strings.TrimSpace(attrs.UserName),
		Total:          attrs.Total,
		Currency:       attrs.Currency,
		Status:         strings.ToLower(strings.TrimSpace(attrs.Status)),
		TestMode:       attrs.TestMode,
		ProductName:    productName,
		VariantName:    variantName,
		SubscriptionID: attrs.SubscriptionID.String(),
		PlacedAt:       *placedAt,
		ExpiresAt:      now.AddDate(0, gracePeriodMonths, 0),
		Processed:      false,
	}
}

// NormalizeSubscription maps any subscription_* envelope to a Subscription
// upsert. All four event kinds share the shape; only the resulting status
// differs. The local expiry window is one grace month from this touchpoint,
// capped by the provider's ends_at when one is supplied.
func (e *WebhookEvent) NormalizeSubscription(now time.Time) *models.Subscription {
	attrs := e.Data.Attributes

	renewsAt := parseProviderTime(attrs.RenewsAt)
	endsAt := parseProviderTime(attrs.EndsAt)

	expiresAt := now.AddDate(0, gracePeriodMonths, 0)
	if endsAt != nil && endsAt.Before(expiresAt) {
		expiresAt = *endsAt
	}

	return &models.Subscription{
		SubscriptionID: e.Data.ID.String(),
		Status:         normalizeSubscriptionStatus(e.EventName(), attrs.Status),
		RenewsAt:       renewsAt,
		EndsAt:         endsAt,
		ExpiresAt:      expiresAt,
		CustomerID:     attrs.CustomerID.String(),
		ProductID:      attrs.ProductID.String(),
		VariantID:      attrs.VariantID.String(),
	}
}

// normalizeSubscriptionStatus folds event name and provider status into the
// local status vocabulary. The provider spells "cancelled"; local records
// use "canceled".
func normalizeSubscriptionStatus(eventName, providerStatus string) string {
	switch eventName {
	case EventSubscriptionCancelled:
		return models.SubscriptionStatusCanceled
	case EventSubscriptionExpired:
		return models.SubscriptionStatusExpired
	}

	status := strings.ToLower(strings.TrimSpace(providerStatus))
	switch status {
	case "cancelled", "canceled":
		return models.SubscriptionStatusCanceled
	case "expired":
		return models.SubscriptionStatusExpired
	case "":
		return models.SubscriptionStatusActive
	default:
		// Unknown provider statuses are stored verbatim; only "active"
		// grants entitlement downstream.
		return status
	}
}

func parseProviderTime(value string) *time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}
