package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrderStatusPending   = "PENDING"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusFailed    = "FAILED"
	OrderStatusRefunded  = "REFUNDED"
)

const (
	ProductTypeSubscription = "SUBSCRIPTION"
	ProductTypeOneTime      = "ONE_TIME"
)

const (
	PlanTypeStandard = "STANDARD"
	PlanTypePro      = "PRO"
)

const (
	PlanIntervalMonthly  = "MONTHLY"
	PlanIntervalAnnually = "ANNUALLY"
)

// Order represents one checkout attempt, subscription or one-time. The local
// UUID id doubles as the checkout session's client_reference_id, which is how
// webhook events find their way back to this row. SessionID is unique per
// platform once the external checkout session has been created.
type Order struct {
	ID                 string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	Amount             int64      `gorm:"not null;default:0" json:"amount"`
	Currency           string     `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Status             string     `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"status"`
	ProductType        string     `gorm:"type:varchar(16);not null" json:"product_type"`
	PlanType           string     `gorm:"type:varchar(16);default:'';index" json:"plan_type"`
	PlanInterval       string     `gorm:"type:varchar(16);default:''" json:"plan_interval"`
	Platform           string     `gorm:"type:varchar(20);not null;index:ux_orders_platform_session,unique,priority:1" json:"platform"`
	PlatformCustomerID string     `gorm:"type:varchar(191);default:'';index" json:"platform_customer_id"`
	PriceID            string     `gorm:"type:varchar(191);not null" json:"price_id"`
	SessionID          string     `gorm:"type:varchar(191);default:null;index:ux_orders_platform_session,unique,priority:2" json:"session_id"`
	CompletedAt        *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	RefundedAt         *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key when none was set.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// IsOneTime reports whether this order was a non-recurring purchase.
func (o *Order) IsOneTime() bool {
	return o.ProductType == ProductTypeOneTime
}
