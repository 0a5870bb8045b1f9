package billing

import (
	"sort"
	"sync"
	"time"

	"github.com/planboard/planboard/app/models"
)

// fakeRepository implements Repository in memory with the same semantics as
// the GORM-backed store. Billing tests run against it so the service and
// sweeper behavior is verifiable without a database.
type fakeRepository struct {
	mu            sync.Mutex
	orders        map[string]models.Order
	subscriptions map[string]models.Subscription
	webhookEvents map[string]models.WebhookEvent
	nextID        uint

	sweepCalls   int
	sweepErr     error
	sweepFailFor map[string]bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		orders:        make(map[string]models.Order),
		subscriptions: make(map[string]models.Subscription),
		webhookEvents: make(map[string]models.WebhookEvent),
		sweepFailFor:  make(map[string]bool),
	}
}

func (r *fakeRepository) allocID() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepository) SaveOrder(order *models.Order) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.orders[order.OrderID]; ok {
		stored := existing
		return &stored, nil
	}

	stored := *order
	stored.ID = r.allocID()
	r.orders[order.OrderID] = stored
	out := stored
	return &out, nil
}

func (r *fakeRepository) UpsertSubscription(sub *models.Subscription) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub.Status == models.SubscriptionStatusActive {
		for _, existing := range r.subscriptions {
			if existing.CustomerID == sub.CustomerID &&
				existing.Status == models.SubscriptionStatusActive &&
				existing.SubscriptionID != sub.SubscriptionID {
				holder := existing
				return &holder, nil
			}
		}
	}

	stored, ok := r.subscriptions[sub.SubscriptionID]
	if !ok {
		stored = *sub
		stored.ID = r.allocID()
	} else {
		stored.Status = sub.Status
		stored.RenewsAt = sub.RenewsAt
		stored.EndsAt = sub.EndsAt
		stored.ExpiresAt = sub.ExpiresAt
		stored.CustomerID = sub.CustomerID
		stored.ProductID = sub.ProductID
		stored.VariantID = sub.VariantID
	}
	r.subscriptions[sub.SubscriptionID] = stored
	out := stored
	return &out, nil
}

func (r *fakeRepository) SweepExpired(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepCalls++
	if r.sweepErr != nil {
		return 0, r.sweepErr
	}

	swept := 0
	for id, sub := range r.subscriptions {
		if sub.Status != models.SubscriptionStatusActive || sub.ExpiresAt.After(now) {
			continue
		}
		// Mirrors the store's per-record isolation: one bad row is skipped
		// and counted as a failure, not propagated.
		if r.sweepFailFor[id] {
			continue
		}
		sub.Status = models.SubscriptionStatusExpired
		r.subscriptions[id] = sub
		for orderID, order := range r.orders {
			if order.SubscriptionID == id {
				delete(r.orders, orderID)
			}
		}
		swept++
	}
	return swept, nil
}

func (r *fakeRepository) ActiveSubscriptionFor(customerID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subscriptions {
		if sub.CustomerID == customerID && sub.Status == models.SubscriptionStatusActive {
			out := sub
			return &out, nil
		}
	}
	return nil, nil
}

func (r *fakeRepository) ActiveSubscriptionForEmail(email string) (*models.Subscription, *models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var latest *models.Order
	for _, order := range r.orders {
		if order.CustomerEmail != email || order.Status != models.OrderStatusPaid {
			continue
		}
		if latest == nil || order.PlacedAt.After(latest.PlacedAt) {
			o := order
			latest = &o
		}
	}
	if latest == nil {
		return nil, nil, nil
	}
	if latest.SubscriptionID == "" {
		return nil, latest, nil
	}
	if sub, ok := r.subscriptions[latest.SubscriptionID]; ok {
		s := sub
		return &s, latest, nil
	}
	return nil, latest, nil
}

func (r *fakeRepository) OrderHistoryFor(customerEmail string) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.CustomerEmail == customerEmail {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].PlacedAt.After(orders[j].PlacedAt)
	})
	return orders, nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.webhookEvents[event.ProviderEventID]; ok {
		stored := existing
		return false, &stored, nil
	}

	stored := *event
	stored.ID = r.allocID()
	r.webhookEvents[event.ProviderEventID] = stored
	out := stored
	return true, &out, nil
}

func (r *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for key, event := range r.webhookEvents {
		if event.ID == id {
			event.ProcessedAt = &now
			event.ProcessingError = processingError
			r.webhookEvents[key] = event
			return nil
		}
	}
	return nil
}

func (r *fakeRepository) subscription(subscriptionID string) *models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subscriptions[subscriptionID]; ok {
		out := sub
		return &out
	}
	return nil
}

func (r *fakeRepository) sweepCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepCalls
}
