package controllers

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/database"
	"github.com/planboard/planboard/internal/pkg/entitlements"
	"github.com/planboard/planboard/internal/pkg/usercontext"
)

// HandleBillingProducts proxies the provider's product catalog. Buy-now
// links get the customer's email prefilled for checkout.
func HandleBillingProducts(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	client := billing.NewClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	products, err := client.GetProducts(ctx)
	if err != nil {
		log.Errorf("product catalog fetch failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "catalog_unavailable"})
	}

	if userCtx.IsLoggedIn {
		for i := range products {
			if products[i].Attributes.BuyNowURL != "" {
				products[i].Attributes.BuyNowURL += "?checkout[email]=" + url.QueryEscape(userCtx.Email)
			}
		}
	}

	return c.JSON(fiber.Map{"data": products})
}

// HandleBillingSubscription returns the caller's current entitlement
// snapshot: cached when fresh, otherwise re-derived from the store.
func HandleBillingSubscription(c *fiber.Ctx) error {
	email := usercontext.GetEmail(c)

	if snapshot, ok := entitlements.CachedSnapshot(email); ok {
		return c.JSON(fiber.Map{"subscription": snapshot})
	}

	svc := billing.NewServiceFromDB(database.GetDB())
	sub, order, err := svc.EntitlementFor(c.Context(), email)
	if err != nil {
		log.Errorf("entitlement lookup failed for %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "entitlement_lookup_failed"})
	}

	var snapshot *entitlements.Snapshot
	if sub != nil {
		plan := entitlements.DefaultPlanName
		if order != nil {
			plan = order.ProductName
		}
		snapshot = entitlements.FromSubscription(sub, plan)
	} else {
		snapshot = entitlements.FromOrder(order)
	}
	entitlements.CacheSnapshot(email, snapshot)

	return c.JSON(fiber.Map{"subscription": snapshot})
}

// HandleBillingOrders lists the caller's order history, newest first.
func HandleBillingOrders(c *fiber.Ctx) error {
	email := usercontext.GetEmail(c)

	svc := billing.NewServiceFromDB(database.GetDB())
	orders, err := svc.OrderHistory(c.Context(), email)
	if err != nil {
		log.Errorf("order history lookup failed for %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_history_failed"})
	}

	return c.JSON(fiber.Map{"orders": orders})
}

// HandleBillingCancel asks the provider to cancel the caller's subscription.
// The local record only changes once the provider confirms via webhook.
func HandleBillingCancel(c *fiber.Ctx) error {
	email := usercontext.GetEmail(c)

	var body struct {
		SubscriptionID string `json:"subscription_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.SubscriptionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "subscription_id is required"})
	}

	client := billing.NewClientFromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Customers may only cancel subscriptions the provider attributes to
	// their own email.
	if !client.VerifySubscriptionAccess(ctx, body.SubscriptionID, email) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	if err := client.CancelSubscription(ctx, body.SubscriptionID); err != nil {
		log.Errorf("subscription cancellation failed for %s: %v", body.SubscriptionID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "cancellation_failed"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
