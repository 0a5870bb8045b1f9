package entitlements

import (
	"time"

	"github.com/planboard/planboard/app/models"
	"github.com/planboard/planboard/internal/pkg/billing"
)

// DefaultPlanName is shown when an event carries no product metadata.
const DefaultPlanName = "Premium Plan"

// Snapshot is the user-facing entitlement projection: what plan the
// customer is on and whether it currently grants access. It is a derived,
// eventually-consistent copy of store state, overwritten wholesale whenever
// a payment event arrives or re-derived from the store on load.
type Snapshot struct {
	SubscriptionID string     `json:"id"`
	Plan           string     `json:"plan"`
	Status         string     `json:"status"`
	RenewalDate    *time.Time `json:"renewal_date,omitempty"`
}

// Allowed is the gate decision: access is granted iff the snapshot holds an
// active subscription. A missing snapshot denies; it never errors.
func Allowed(s *Snapshot) bool {
	return s != nil && s.Status == models.SubscriptionStatusActive
}

// FromSubscription projects a stored subscription into a snapshot.
func FromSubscription(sub *models.Subscription, plan string) *Snapshot {
	if sub == nil {
		return nil
	}
	if plan == "" {
		plan = DefaultPlanName
	}
	return &Snapshot{
		SubscriptionID: sub.SubscriptionID,
		Plan:           plan,
		Status:         sub.Status,
		RenewalDate:    sub.RenewsAt,
	}
}

// FromOrder projects a paid one-off order into an active snapshot. Orders
// without a linked subscription still grant the plan they purchased.
func FromOrder(order *models.Order) *Snapshot {
	if order == nil || order.Status != models.OrderStatusPaid {
		return nil
	}
	placed := order.PlacedAt
	return &Snapshot{
		SubscriptionID: order.SubscriptionID,
		Plan:           order.ProductName,
		Status:         models.SubscriptionStatusActive,
		RenewalDate:    &placed,
	}
}

// ApplyEvent folds one payment event into the previous snapshot and returns
// the replacement. A subscription_expired event clears the entitlement
// entirely (nil snapshot); every other recognized event overwrites the
// snapshot wholesale. Unrecognized events leave the snapshot untouched.
func ApplyEvent(prev *Snapshot, eventType string, order *models.Order, sub *models.Subscription) *Snapshot {
	switch eventType {
	case billing.EventOrderCreated:
		if next := FromOrder(order); next != nil {
			return next
		}
		return prev

	case billing.EventSubscriptionCreated:
		if sub != nil && sub.IsActive() {
			return FromSubscription(sub, DefaultPlanName)
		}
		return prev

	case billing.EventSubscriptionUpdated:
		if sub == nil {
			return prev
		}
		return FromSubscription(sub, DefaultPlanName)

	case billing.EventSubscriptionCancelled:
		if sub == nil {
			return prev
		}
		next := FromSubscription(sub, DefaultPlanName)
		next.Status = models.SubscriptionStatusCanceled
		next.RenewalDate = sub.EndsAt
		return next

	case billing.EventSubscriptionExpired:
		return nil

	default:
		return prev
	}
}
