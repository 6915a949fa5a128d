package models

import "time"

// Subscription status values mirror the provider states, uppercased.
const (
	SubscriptionStatusActive            = "ACTIVE"
	SubscriptionStatusTrialing          = "TRIALING"
	SubscriptionStatusPastDue           = "PAST_DUE"
	SubscriptionStatusUnpaid            = "UNPAID"
	SubscriptionStatusCanceled          = "CANCELED"
	SubscriptionStatusIncomplete        = "INCOMPLETE"
	SubscriptionStatusIncompleteExpired = "INCOMPLETE_EXPIRED"
	SubscriptionStatusPaused            = "PAUSED"
)

// Subscription mirrors one external recurring-billing subscription, unique on
// (platform, platform_subscription_id) so that redelivered or out-of-order
// webhook events upsert into a single row instead of creating duplicates.
//
// OrderID is a logical reference, not a foreign key: order and subscription
// rows are created by different flows with no guaranteed insertion order.
// LastEventAt records the provider timestamp of the newest event applied to
// this row; older events arriving later are discarded as stale.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	OrderID                string     `gorm:"type:varchar(36);default:'';index" json:"order_id"`
	Platform               string     `gorm:"type:varchar(20);not null;index:ux_subscriptions_platform_subid,unique,priority:1;index:idx_subscriptions_platform_status,priority:1" json:"platform"`
	PlatformSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_platform_subid,unique,priority:2" json:"platform_subscription_id"`
	PlatformCustomerID     string     `gorm:"type:varchar(191);default:''" json:"platform_customer_id"`
	PriceID                string     `gorm:"type:varchar(191);not null;index" json:"price_id"`
	Status                 string     `gorm:"type:varchar(32);not null;index:idx_subscriptions_platform_status,priority:2" json:"status"`
	PlanType               string     `gorm:"type:varchar(16);default:''" json:"plan_type"`
	PlanInterval           string     `gorm:"type:varchar(16);default:''" json:"plan_interval"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialStart             *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd               *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CancelReason           string     `gorm:"type:text" json:"cancel_reason"`
	PreviousAttributes     string     `gorm:"type:longtext" json:"previous_attributes"`
	ActivatedAt            *time.Time `gorm:"type:timestamp;default:null" json:"activated_at,omitempty"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	LastEventAt            *time.Time `gorm:"type:timestamp;default:null" json:"last_event_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLive reports whether the subscription status still grants access,
// independent of period expiry.
func (s *Subscription) IsLive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrialing
}
