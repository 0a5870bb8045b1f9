package entitlements

import (
	"testing"
	"time"

	"github.com/planboard/planboard/app/models"
	"github.com/planboard/planboard/internal/pkg/billing"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name string
		snap *Snapshot
		want bool
	}{
		{name: "nil snapshot denies", snap: nil, want: false},
		{name: "active grants", snap: &Snapshot{Status: models.SubscriptionStatusActive}, want: true},
		{name: "canceled denies", snap: &Snapshot{Status: models.SubscriptionStatusCanceled}, want: false},
		{name: "expired denies", snap: &Snapshot{Status: models.SubscriptionStatusExpired}, want: false},
		{name: "past_due denies", snap: &Snapshot{Status: "past_due"}, want: false},
		{name: "empty status denies", snap: &Snapshot{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.snap); got != tt.want {
				t.Fatalf("Allowed(%+v) = %v, want %v", tt.snap, got, tt.want)
			}
		})
	}
}

func TestFromSubscription(t *testing.T) {
	if got := FromSubscription(nil, "anything"); got != nil {
		t.Fatalf("nil subscription should project to nil, got %+v", got)
	}

	renews := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	snap := FromSubscription(&models.Subscription{
		SubscriptionID: "sub_1",
		Status:         models.SubscriptionStatusActive,
		RenewsAt:       &renews,
	}, "")
	if snap.SubscriptionID != "sub_1" {
		t.Fatalf("SubscriptionID = %q", snap.SubscriptionID)
	}
	if snap.Plan != DefaultPlanName {
		t.Fatalf("empty plan should fall back to %q, got %q", DefaultPlanName, snap.Plan)
	}
	if snap.RenewalDate == nil || !snap.RenewalDate.Equal(renews) {
		t.Fatalf("RenewalDate = %v, want %v", snap.RenewalDate, renews)
	}
	if !Allowed(snap) {
		t.Fatalf("active subscription snapshot should grant access")
	}
}

func TestFromOrder(t *testing.T) {
	if got := FromOrder(nil); got != nil {
		t.Fatalf("nil order should project to nil")
	}
	if got := FromOrder(&models.Order{Status: models.OrderStatusPending}); got != nil {
		t.Fatalf("unpaid order should project to nil, got %+v", got)
	}

	placed := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	snap := FromOrder(&models.Order{
		Status:      models.OrderStatusPaid,
		ProductName: "Creator Plan",
		PlacedAt:    placed,
	})
	if snap == nil || snap.Plan != "Creator Plan" {
		t.Fatalf("paid order snapshot = %+v", snap)
	}
	if !Allowed(snap) {
		t.Fatalf("paid order snapshot should grant access")
	}
}

func TestApplyEvent(t *testing.T) {
	ends := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	renews := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	prev := &Snapshot{SubscriptionID: "sub_old", Plan: "Old Plan", Status: models.SubscriptionStatusActive}

	t.Run("expired clears the snapshot", func(t *testing.T) {
		if got := ApplyEvent(prev, billing.EventSubscriptionExpired, nil, nil); got != nil {
			t.Fatalf("expected nil, got %+v", got)
		}
	})

	t.Run("cancelled demotes and keeps access window end", func(t *testing.T) {
		got := ApplyEvent(prev, billing.EventSubscriptionCancelled, nil, &models.Subscription{
			SubscriptionID: "sub_1",
			Status:         models.SubscriptionStatusCanceled,
			EndsAt:         &ends,
		})
		if got == nil || got.Status != models.SubscriptionStatusCanceled {
			t.Fatalf("got %+v, want canceled snapshot", got)
		}
		if got.RenewalDate == nil || !got.RenewalDate.Equal(ends) {
			t.Fatalf("RenewalDate = %v, want ends_at %v", got.RenewalDate, ends)
		}
		if Allowed(got) {
			t.Fatalf("canceled snapshot must not grant access")
		}
	})

	t.Run("created replaces only when active", func(t *testing.T) {
		got := ApplyEvent(prev, billing.EventSubscriptionCreated, nil, &models.Subscription{
			SubscriptionID: "sub_1",
			Status:         models.SubscriptionStatusActive,
			RenewsAt:       &renews,
		})
		if got == nil || got.SubscriptionID != "sub_1" {
			t.Fatalf("got %+v, want replacement from sub_1", got)
		}

		got = ApplyEvent(prev, billing.EventSubscriptionCreated, nil, &models.Subscription{
			SubscriptionID: "sub_2",
			Status:         "past_due",
		})
		if got != prev {
			t.Fatalf("non-active created event must leave the snapshot untouched")
		}
	})

	t.Run("updated overwrites wholesale", func(t *testing.T) {
		got := ApplyEvent(prev, billing.EventSubscriptionUpdated, nil, &models.Subscription{
			SubscriptionID: "sub_1",
			Status:         "paused",
		})
		if got == nil || got.Status != "paused" {
			t.Fatalf("got %+v, want paused snapshot", got)
		}
	})

	t.Run("order created only replaces for paid orders", func(t *testing.T) {
		got := ApplyEvent(prev, billing.EventOrderCreated, &models.Order{
			Status:      models.OrderStatusPaid,
			ProductName: "Creator Plan",
		}, nil)
		if got == nil || got.Plan != "Creator Plan" {
			t.Fatalf("got %+v, want order snapshot", got)
		}

		got = ApplyEvent(prev, billing.EventOrderCreated, &models.Order{
			Status: models.OrderStatusRefunded,
		}, nil)
		if got != prev {
			t.Fatalf("refunded order must leave the snapshot untouched")
		}
	})

	t.Run("unknown events are ignored", func(t *testing.T) {
		if got := ApplyEvent(prev, "subscription_payment_success", nil, nil); got != prev {
			t.Fatalf("unknown event must leave the snapshot untouched")
		}
	})
}
