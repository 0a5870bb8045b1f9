package models

import "time"

const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusRefunded = "refunded"
)

// Order is a completed purchase grant from the billing provider. Rows are
// written once when a paid order event arrives and only ever removed by the
// expiry sweeper when the linked subscription runs out.
type Order struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderID        string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_orders_order_id" json:"order_id"`
	OrderNumber    int64     `gorm:"not null;default:0" json:"order_number"`
	CustomerEmail  string    `gorm:"type:varchar(200);not null;index" json:"customer_email"`
	CustomerName   string    `gorm:"type:varchar(150)" json:"customer_name"`
	Total          int64     `gorm:"not null;default:0" json:"total"`
	Currency       string    `gorm:"type:varchar(10)" json:"currency"`
	Status         string    `gorm:"type:varchar(32);not null;index" json:"status"`
	TestMode       bool      `gorm:"default:false" json:"test_mode"`
	ProductName    string    `gorm:"type:varchar(191);not null;default:'Unknown Product'" json:"product_name"`
	VariantName    string    `gorm:"type:varchar(191);not null;default:'Default Variant'" json:"variant_name"`
	SubscriptionID string    `gorm:"type:varchar(191);index" json:"subscription_id,omitempty"`
	PlacedAt       time.Time `gorm:"type:timestamp;not null" json:"placed_at"`
	ExpiresAt      time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
	Processed      bool      `gorm:"default:false" json:"processed"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
