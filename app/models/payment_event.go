package models

import "time"

// Payment platform constants used across payment-related models.
const (
	PaymentPlatformStripe = "stripe"
)

const (
	EventStatusPending = "PENDING"
	EventStatusSuccess = "SUCCESS"
	EventStatusFailed  = "FAILED"
)

// PaymentEvent stores one row per inbound billing webhook delivery. The
// (platform, event_id) pair is the natural idempotency token: redelivery of
// an already successful event must be detected before any mutation. Rows are
// never deleted so the raw payload stays available for replay and audit.
type PaymentEvent struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	Platform       string     `gorm:"type:varchar(20);not null;index:ux_payment_events_platform_event,unique,priority:1;index" json:"platform"`
	EventID        string     `gorm:"type:varchar(191);not null;index:ux_payment_events_platform_event,unique,priority:2" json:"event_id"`
	Type           string     `gorm:"type:varchar(100);not null;index" json:"type"`
	Status         string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	Payload        string     `gorm:"type:longtext;not null" json:"payload"`
	OrderID        string     `gorm:"type:varchar(36);default:'';index" json:"order_id"`
	SubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"subscription_id"`
	UserID         uint       `gorm:"default:0;index" json:"user_id"`
	Error          string     `gorm:"type:text" json:"error"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
