package models

import "time"

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusExpired  = "expired"
)

// Subscription mirrors a provider subscription and carries the locally
// computed expiry window used by the sweeper. Rows are upserted by provider
// subscription id; they are never hard-deleted, only demoted to expired.
type Subscription struct {
	ID             uint       `gorm:"primaryKey" json:"-"`
	SubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_sub_id" json:"id"`
	Status         string     `gorm:"type:varchar(32);not null;default:'active';index:idx_subscriptions_customer_status,priority:2" json:"status"`
	RenewsAt       *time.Time `gorm:"type:timestamp;default:null" json:"renews_at,omitempty"`
	EndsAt         *time.Time `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	ExpiresAt      time.Time  `gorm:"type:timestamp;not null;index" json:"expires_at"`
	CustomerID     string     `gorm:"type:varchar(191);not null;index:idx_subscriptions_customer_status,priority:1" json:"customer_id"`
	ProductID      string     `gorm:"type:varchar(191)" json:"product_id"`
	VariantID      string     `gorm:"type:varchar(191)" json:"variant_id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription currently grants entitlement.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
