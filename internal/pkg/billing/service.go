package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/planboard/planboard/app/models"
)

// ErrInvalidInput marks normalization results too incomplete to persist.
// Callers drop these instead of surfacing a hard failure to the provider.
var ErrInvalidInput = errors.New("invalid billing input")

// Service provides entitlement synchronization over an injected repository.
type Service struct {
	repo  Repository
	clock func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// WithClock overrides the service clock. Tests use this to pin expiry
// boundaries.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Now returns the service's current time.
func (s *Service) Now() time.Time {
	return s.clock()
}

// SaveOrder persists a normalized order idempotently by provider order id.
func (s *Service) SaveOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	_ = ctx
	if order == nil || strings.TrimSpace(order.OrderID) == "" {
		return nil, fmt.Errorf("%w: order_id is required", ErrInvalidInput)
	}
	return s.repo.SaveOrder(order)
}

// SyncSubscription upserts a normalized subscription with first-active-wins
// conflict resolution.
func (s *Service) SyncSubscription(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	_ = ctx
	if sub == nil || strings.TrimSpace(sub.SubscriptionID) == "" {
		return nil, fmt.Errorf("%w: subscription_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(sub.CustomerID) == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	return s.repo.UpsertSubscription(sub)
}

// SweepExpired runs one expiry pass at the service's current time.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	_ = ctx
	return s.repo.SweepExpired(s.clock())
}

// ActiveSubscriptionFor returns the customer's active subscription, nil when
// there is none.
func (s *Service) ActiveSubscriptionFor(ctx context.Context, customerID string) (*models.Subscription, error) {
	_ = ctx
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrInvalidInput)
	}
	return s.repo.ActiveSubscriptionFor(id)
}

// EntitlementFor resolves a customer email to its current subscription and
// most recent paid order. Both may be nil for customers without purchases.
func (s *Service) EntitlementFor(ctx context.Context, email string) (*models.Subscription, *models.Order, error) {
	_ = ctx
	e := strings.TrimSpace(email)
	if e == "" {
		return nil, nil, errors.New("customer email is required")
	}
	return s.repo.ActiveSubscriptionForEmail(e)
}

// OrderHistory lists a customer's orders, newest first.
func (s *Service) OrderHistory(ctx context.Context, email string) ([]models.Order, error) {
	_ = ctx
	e := strings.TrimSpace(email)
	if e == "" {
		return nil, errors.New("customer email is required")
	}
	return s.repo.OrderHistoryFor(e)
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// RecordWebhookEvent persists webhook deliveries idempotently. Deliveries
// without a provider event id deduplicate on a payload hash.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}
