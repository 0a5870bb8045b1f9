package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planboard/planboard/app/models"
	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/realtime"
)

// memBillingRepo is a minimal in-memory billing.Repository so handler tests
// can drive the full persist path without a database.
type memBillingRepo struct {
	orders map[string]*models.Order
	subs   map[string]*models.Subscription
	events map[string]*models.WebhookEvent
	nextID uint
}

func newMemBillingRepo() *memBillingRepo {
	return &memBillingRepo{
		orders: make(map[string]*models.Order),
		subs:   make(map[string]*models.Subscription),
		events: make(map[string]*models.WebhookEvent),
	}
}

func (r *memBillingRepo) allocID() uint {
	r.nextID++
	return r.nextID
}

func (r *memBillingRepo) SaveOrder(order *models.Order) (*models.Order, error) {
	if existing, ok := r.orders[order.OrderID]; ok {
		return existing, nil
	}
	stored := *order
	stored.ID = r.allocID()
	r.orders[order.OrderID] = &stored
	return &stored, nil
}

func (r *memBillingRepo) UpsertSubscription(sub *models.Subscription) (*models.Subscription, error) {
	if sub.Status == models.SubscriptionStatusActive {
		for _, existing := range r.subs {
			if existing.CustomerID == sub.CustomerID &&
				existing.Status == models.SubscriptionStatusActive &&
				existing.SubscriptionID != sub.SubscriptionID {
				return existing, nil
			}
		}
	}
	stored, ok := r.subs[sub.SubscriptionID]
	if !ok {
		cp := *sub
		cp.ID = r.allocID()
		r.subs[sub.SubscriptionID] = &cp
		return &cp, nil
	}
	id := stored.ID
	*stored = *sub
	stored.ID = id
	return stored, nil
}

func (r *memBillingRepo) SweepExpired(now time.Time) (int, error) {
	return 0, nil
}

func (r *memBillingRepo) ActiveSubscriptionFor(customerID string) (*models.Subscription, error) {
	for _, sub := range r.subs {
		if sub.CustomerID == customerID && sub.Status == models.SubscriptionStatusActive {
			return sub, nil
		}
	}
	return nil, nil
}

func (r *memBillingRepo) ActiveSubscriptionForEmail(email string) (*models.Subscription, *models.Order, error) {
	return nil, nil, nil
}

func (r *memBillingRepo) OrderHistoryFor(customerEmail string) ([]models.Order, error) {
	return nil, nil
}

func (r *memBillingRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if existing, ok := r.events[event.ProviderEventID]; ok {
		return false, existing, nil
	}
	stored := *event
	stored.ID = r.allocID()
	r.events[event.ProviderEventID] = &stored
	return true, &stored, nil
}

func (r *memBillingRepo) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	for _, event := range r.events {
		if event.ID == id {
			event.ProcessedAt = &now
			event.ProcessingError = processingError
		}
	}
	return nil
}

func newWebhookTestApp(t *testing.T, repo *memBillingRepo) *fiber.App {
	t.Helper()

	hub := realtime.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	InitializeWebhookController(hub, billing.NewService(repo))
	t.Cleanup(func() { InitializeWebhookController(nil, nil) })

	app := fiber.New()
	app.Post("/api/webhooks/lemonsqueezy", HandleLemonSqueezyWebhook)
	return app
}

func signWebhookBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature, eventID string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, "/api/webhooks/lemonsqueezy", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	if eventID != "" {
		req.Header.Set("X-Event-Id", eventID)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandleLemonSqueezyWebhook_MissingSignature(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	app := newWebhookTestApp(t, newMemBillingRepo())

	resp := postWebhook(t, app, []byte(`{"meta":{"event_name":"order_created"}}`), "", "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleLemonSqueezyWebhook_TamperedBody(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	repo := newMemBillingRepo()
	app := newWebhookTestApp(t, repo)

	original := []byte(`{"meta":{"event_name":"order_created"},"data":{"id":"ord_1","attributes":{"total":999}}}`)
	signature := signWebhookBody(original, "test-secret")

	tampered := bytes.Replace(original, []byte(`"total":999`), []byte(`"total":1`), 1)
	resp := postWebhook(t, app, tampered, signature, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// A rejected delivery never reaches the store, not even the journal.
	assert.Empty(t, repo.events)
	assert.Empty(t, repo.orders)
}

func TestHandleLemonSqueezyWebhook_WrongSecret(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	app := newWebhookTestApp(t, newMemBillingRepo())

	body := []byte(`{"meta":{"event_name":"order_created"}}`)
	resp := postWebhook(t, app, body, signWebhookBody(body, "attacker-secret"), "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandleLemonSqueezyWebhook_SubscriptionCreated(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	repo := newMemBillingRepo()
	app := newWebhookTestApp(t, repo)

	body := []byte(`{
		"meta": { "event_name": "subscription_created" },
		"data": {
			"id": "sub_1",
			"type": "subscriptions",
			"attributes": {
				"status": "active",
				"customer_id": "cust_1",
				"renews_at": "2025-02-01"
			}
		}
	}`)
	signature := signWebhookBody(body, "test-secret")

	resp := postWebhook(t, app, body, signature, "evt_1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["received"])

	stored, ok := repo.subs["sub_1"]
	require.True(t, ok, "subscription must be persisted")
	assert.Equal(t, models.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, "cust_1", stored.CustomerID)
	assert.WithinDuration(t, time.Now().AddDate(0, 1, 0), stored.ExpiresAt, time.Minute)

	// Redelivery of the same event id is acknowledged without reprocessing.
	resp = postWebhook(t, app, body, signature, "evt_1")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["duplicate"])
	assert.Len(t, repo.events, 1)
}

func TestHandleLemonSqueezyWebhook_OrderCreated(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	repo := newMemBillingRepo()
	app := newWebhookTestApp(t, repo)

	body := []byte(`{
		"meta": { "event_name": "order_created" },
		"data": {
			"id": "ord_1",
			"type": "orders",
			"attributes": {
				"user_email": "alice@example.com",
				"status": "paid",
				"total": 1999
			}
		}
	}`)

	resp := postWebhook(t, app, body, signWebhookBody(body, "test-secret"), "evt_2")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["received"])

	stored, ok := repo.orders["ord_1"]
	require.True(t, ok, "paid order must be persisted")
	assert.Equal(t, "alice@example.com", stored.CustomerEmail)
	assert.Equal(t, "Unknown Product", stored.ProductName)
}

func TestHandleLemonSqueezyWebhook_NonPaidOrderIgnored(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	repo := newMemBillingRepo()
	app := newWebhookTestApp(t, repo)

	body := []byte(`{
		"meta": { "event_name": "order_created" },
		"data": {
			"id": "ord_2",
			"type": "orders",
			"attributes": { "user_email": "bob@example.com", "status": "refunded" }
		}
	}`)

	resp := postWebhook(t, app, body, signWebhookBody(body, "test-secret"), "evt_3")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["ignored"])
	assert.Empty(t, repo.orders)
}

func TestHandleLemonSqueezyWebhook_UnknownEventAcknowledged(t *testing.T) {
	t.Setenv("LEMONSQUEEZY_WEBHOOK_SECRET", "test-secret")
	repo := newMemBillingRepo()
	app := newWebhookTestApp(t, repo)

	body := []byte(`{"meta":{"event_name":"subscription_payment_success"},"data":{"id":"x"}}`)
	resp := postWebhook(t, app, body, signWebhookBody(body, "test-secret"), "evt_4")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["ignored"])
	assert.Empty(t, repo.subs)
	assert.Empty(t, repo.orders)
}
