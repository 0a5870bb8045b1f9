package billing

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/planboard/planboard/app/models"
)

// Repository provides DB operations used by the billing service. The store
// is the single source of truth for entitlement state; everything else
// (snapshot cache, connected clients) holds eventually-consistent copies.
type Repository interface {
	SaveOrder(order *models.Order) (*models.Order, error)
	UpsertSubscription(sub *models.Subscription) (*models.Subscription, error)
	SweepExpired(now time.Time) (int, error)
	ActiveSubscriptionFor(customerID string) (*models.Subscription, error)
	ActiveSubscriptionForEmail(email string) (*models.Subscription, *models.Order, error)
	OrderHistoryFor(customerEmail string) ([]models.Order, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// SaveOrder inserts the order unless one with the same provider order id
// already exists, in which case the stored record is returned unchanged.
func (r *gormRepository) SaveOrder(order *models.Order) (*models.Order, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoNothing: true,
	}).Create(order)
	if tx.Error != nil {
		return nil, tx.Error
	}

	var stored models.Order
	if err := r.db.Where("order_id = ?", order.OrderID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpsertSubscription inserts or updates by provider subscription id with
// first-active-wins semantics: when the incoming record is active and the
// customer already holds a different active subscription, the write is
// refused and the existing holder is returned. The holder lookup and the
// write run in one transaction with a row lock so two concurrent
// activations for the same customer serialize at the storage layer.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) (*models.Subscription, error) {
	var result models.Subscription

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if sub.Status == models.SubscriptionStatusActive {
			var holder models.Subscription
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("customer_id = ? AND status = ? AND subscription_id <> ?",
					sub.CustomerID, models.SubscriptionStatusActive, sub.SubscriptionID).
				First(&holder).Error
			if err == nil {
				log.Warnf("customer %s already has active subscription %s, refusing activation of %s",
					sub.CustomerID, holder.SubscriptionID, sub.SubscriptionID)
				result = holder
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status",
				"renews_at",
				"ends_at",
				"expires_at",
				"customer_id",
				"product_id",
				"variant_id",
				"updated_at",
			}),
		}).Create(sub).Error; err != nil {
			return err
		}

		return tx.Where("subscription_id = ?", sub.SubscriptionID).First(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// SweepExpired demotes active subscriptions whose local expiry window has
// elapsed and removes their order grants. Each record's update+delete pair
// is attempted independently so one bad row never blocks its siblings.
func (r *gormRepository) SweepExpired(now time.Time) (int, error) {
	var expired []models.Subscription
	if err := r.db.
		Where("status = ? AND expires_at <= ?", models.SubscriptionStatusActive, now).
		Find(&expired).Error; err != nil {
		return 0, err
	}

	swept := 0
	for _, sub := range expired {
		err := r.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Model(&models.Subscription{}).
				Where("subscription_id = ?", sub.SubscriptionID).
				Update("status", models.SubscriptionStatusExpired).Error; err != nil {
				return err
			}
			return tx.Where("subscription_id = ?", sub.SubscriptionID).
				Delete(&models.Order{}).Error
		})
		if err != nil {
			log.Errorf("failed to expire subscription %s: %v", sub.SubscriptionID, err)
			continue
		}
		swept++
	}
	return swept, nil
}

// ActiveSubscriptionFor returns the customer's active subscription, or nil
// when there is none. Absence is a normal empty result, not an error.
func (r *gormRepository) ActiveSubscriptionFor(customerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.
		Where("customer_id = ? AND status = ?", customerID, models.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ActiveSubscriptionForEmail resolves a customer email to its active
// subscription via the most recent paid order, falling back to the paid
// order alone when the order carries no subscription link.
func (r *gormRepository) ActiveSubscriptionForEmail(email string) (*models.Subscription, *models.Order, error) {
	var order models.Order
	err := r.db.
		Where("customer_email = ? AND status = ?", email, models.OrderStatusPaid).
		Order("placed_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	if order.SubscriptionID == "" {
		return nil, &order, nil
	}

	var sub models.Subscription
	err = r.db.Where("subscription_id = ?", order.SubscriptionID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &order, nil
		}
		return nil, nil, err
	}
	return &sub, &order, nil
}

// OrderHistoryFor lists a customer's orders, newest first. No orders is a
// normal empty result.
func (r *gormRepository) OrderHistoryFor(customerEmail string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.
		Where("customer_email = ?", customerEmail).
		Order("placed_at DESC").
		Find(&orders).Error
	return orders, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider_event_id = ?", event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
