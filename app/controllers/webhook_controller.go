package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/planboard/planboard/app/models"
	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/database"
	"github.com/planboard/planboard/internal/pkg/entitlements"
	"github.com/planboard/planboard/internal/pkg/env"
	"github.com/planboard/planboard/internal/pkg/realtime"
)

var (
	paymentHub *realtime.Hub
	billingSvc *billing.Service
)

// InitializeWebhookController wires the billing service backing webhook
// ingestion and the realtime hub used to fan out payment events after
// successful store mutations.
func InitializeWebhookController(hub *realtime.Hub, svc *billing.Service) {
	paymentHub = hub
	billingSvc = svc
}

func webhookService() *billing.Service {
	if billingSvc != nil {
		return billingSvc
	}
	return billing.NewServiceFromDB(database.GetDB())
}

// HandleLemonSqueezyWebhook ingests one billing provider delivery:
// verify signature -> journal -> normalize -> persist -> broadcast.
// Signature failure is a security boundary; the event never reaches the
// store. Malformed or unrecognized events are logged and acknowledged so
// the provider stops retrying them.
func HandleLemonSqueezyWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Signature"))
	secret := env.GetEnv("LEMONSQUEEZY_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		log.Warnf("webhook signature verification failed from %s", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	svc := webhookService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	event, parseErr := billing.ParseWebhookEvent(rawBody)
	eventType := ""
	if parseErr == nil {
		eventType = event.EventName()
	}

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		ProviderEventID: strings.TrimSpace(c.Get("X-Event-Id")),
		EventType:       eventType,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("failed to journal webhook delivery: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	if parseErr != nil {
		log.Warnf("dropping malformed webhook payload: %v", parseErr)
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, parseErr)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}

	switch eventType {
	case billing.EventOrderCreated:
		return handleOrderCreated(ctx, c, svc, event, stored.ID)

	case billing.EventSubscriptionCreated,
		billing.EventSubscriptionUpdated,
		billing.EventSubscriptionCancelled,
		billing.EventSubscriptionExpired:
		return handleSubscriptionEvent(ctx, c, svc, event, stored.ID)

	default:
		log.Warnf("unhandled webhook event type: %s", event.Meta.EventName)
		_ = svc.MarkWebhookProcessed(ctx, stored.ID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}
}

func handleOrderCreated(ctx context.Context, c *fiber.Ctx, svc *billing.Service, event *billing.WebhookEvent, journalID uint) error {
	order := event.NormalizeOrder(svc.Now())

	// Only paid orders grant entitlement; everything else is dropped.
	if order.Status != models.OrderStatusPaid {
		log.Infof("dropping non-paid order %s (status %s)", order.OrderID, order.Status)
		_ = svc.MarkWebhookProcessed(ctx, journalID, nil)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
	}

	stored, err := svc.SaveOrder(ctx, order)
	if err != nil {
		_ = svc.MarkWebhookProcessed(ctx, journalID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	entitlements.InvalidateSnapshot(stored.CustomerEmail)
	if paymentHub != nil {
		paymentHub.BroadcastPaymentEvent(billing.EventOrderCreated, stored, nil)
	}

	_ = svc.MarkWebhookProcessed(ctx, journalID, nil)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

func handleSubscriptionEvent(ctx context.Context, c *fiber.Ctx, svc *billing.Service, event *billing.WebhookEvent, journalID uint) error {
	sub := event.NormalizeSubscription(svc.Now())
	eventType := event.EventName()

	stored, err := svc.SyncSubscription(ctx, sub)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidInput) {
			log.Warnf("dropping %s with incomplete payload: %v", eventType, err)
			_ = svc.MarkWebhookProcessed(ctx, journalID, err)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "ignored": true})
		}
		_ = svc.MarkWebhookProcessed(ctx, journalID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_processing_failed"})
	}

	if email := strings.TrimSpace(event.Data.Attributes.UserEmail); email != "" {
		entitlements.InvalidateSnapshot(email)
	}
	if paymentHub != nil {
		paymentHub.BroadcastPaymentEvent(eventType, nil, stored)
	}

	_ = svc.MarkWebhookProcessed(ctx, journalID, nil)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
