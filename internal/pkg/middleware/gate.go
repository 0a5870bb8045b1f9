package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/planboard/planboard/internal/pkg/billing"
	"github.com/planboard/planboard/internal/pkg/entitlements"
	"github.com/planboard/planboard/internal/pkg/usercontext"
)

// UpgradePath is where customers without an active subscription are sent.
const UpgradePath = "/settings/billing"

// RequireActiveSubscription gates premium features behind an active
// subscription. The decision reads the cached entitlement snapshot and
// falls back to the store on a miss; failures deny rather than error, and
// denial redirects browsers to the upgrade prompt instead of surfacing an
// error.
func RequireActiveSubscription(svc *billing.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)
		if !userCtx.IsLoggedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		snapshot, ok := entitlements.CachedSnapshot(userCtx.Email)
		if !ok {
			sub, order, err := svc.EntitlementFor(c.Context(), userCtx.Email)
			if err != nil {
				// Fail closed: missing entitlement data means not entitled.
				log.Errorf("entitlement lookup failed for %s: %v", userCtx.Email, err)
				return denyUpgrade(c)
			}
			if sub != nil {
				plan := entitlements.DefaultPlanName
				if order != nil {
					plan = order.ProductName
				}
				snapshot = entitlements.FromSubscription(sub, plan)
			} else {
				snapshot = entitlements.FromOrder(order)
			}
			entitlements.CacheSnapshot(userCtx.Email, snapshot)
		}

		if !entitlements.Allowed(snapshot) {
			return denyUpgrade(c)
		}
		return c.Next()
	}
}

func denyUpgrade(c *fiber.Ctx) error {
	if strings.Contains(c.Get(fiber.HeaderAccept), "text/html") {
		return c.Redirect(UpgradePath, fiber.StatusSeeOther)
	}
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":       "subscription_required",
		"upgrade_url": UpgradePath,
	})
}
