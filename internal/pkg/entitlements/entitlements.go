package entitlements

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shipnowhq/shipnow/app/models"
	"github.com/shipnowhq/shipnow/internal/pkg/billing"
	"github.com/shipnowhq/shipnow/internal/pkg/utils"
)

// Entitlement sources.
const (
	SourceSubscription = "SUBSCRIPTION"
	SourceOneTime      = "ONE_TIME"
)

// Entitlement is the derived answer to "does this user currently have paid
// access". It is computed fresh on every read; nothing is cached or stored.
type Entitlement struct {
	Entitled          bool       `json:"entitled"`
	PlanType          string     `json:"plan_type,omitempty"`
	PlanInterval      string     `json:"plan_interval,omitempty"`
	Status            string     `json:"status,omitempty"`
	Source            string     `json:"source,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end,omitempty"`
}

// Store is the read surface the resolver needs. The billing repository
// satisfies it.
type Store interface {
	LatestLiveSubscription(userID uint, now, monthlyCutoff, annualCutoff time.Time) (*models.Subscription, error)
	LatestCompletedOneTimeOrder(userID uint, monthlyCutoff, annualCutoff time.Time) (*models.Order, error)
}

var _ Store = billing.Repository(nil)

// Resolver derives entitlements from billing state. The clock is injectable
// for tests.
type Resolver struct {
	store Store
	now   func() time.Time
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: utils.NowUTC}
}

// GetEntitlement checks live subscriptions first, then unexpired one-time
// purchases. Queries are bounded to a lookback window per plan interval, two
// months for monthly and thirteen for annual, which always exceeds the
// longest valid access period of that interval.
func (r *Resolver) GetEntitlement(userID uint) (*Entitlement, error) {
	now := r.now()
	monthlyCutoff := utils.AddCalendarMonths(now, -2)
	annualCutoff := utils.AddCalendarMonths(now, -13)

	sub, err := r.store.LatestLiveSubscription(userID, now, monthlyCutoff, annualCutoff)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("query subscriptions for user %d: %w", userID, err)
	}
	if sub != nil {
		if expiry := subscriptionExpiry(sub); expiry != nil && expiry.After(now) {
			return &Entitlement{
				Entitled:          true,
				PlanType:          sub.PlanType,
				PlanInterval:      sub.PlanInterval,
				Status:            sub.Status,
				Source:            SourceSubscription,
				ExpiresAt:         expiry,
				CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			}, nil
		}
	}

	order, err := r.store.LatestCompletedOneTimeOrder(userID, monthlyCutoff, annualCutoff)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("query one-time orders for user %d: %w", userID, err)
	}
	if order != nil && order.CompletedAt != nil {
		expiry := OneTimePurchaseExpiry(*order.CompletedAt, order.PlanInterval)
		if expiry.After(now) {
			return &Entitlement{
				Entitled:     true,
				PlanType:     order.PlanType,
				PlanInterval: order.PlanInterval,
				Status:       models.OrderStatusCompleted,
				Source:       SourceOneTime,
				ExpiresAt:    &expiry,
			}, nil
		}
	}

	return &Entitlement{Entitled: false}, nil
}

// subscriptionExpiry picks the timestamp that bounds access for the current
// status: the trial end while trialing, the period end otherwise.
func subscriptionExpiry(sub *models.Subscription) *time.Time {
	if sub.Status == models.SubscriptionStatusTrialing {
		return sub.TrialEnd
	}
	return sub.CurrentPeriodEnd
}

// OneTimePurchaseExpiry computes the end of access for a non-recurring
// payment: completion date plus one calendar interval, with month-end
// clamping (a purchase on Jan 31 expires on Feb 28/29, not in March).
func OneTimePurchaseExpiry(completedAt time.Time, planInterval string) time.Time {
	if planInterval == models.PlanIntervalMonthly {
		return utils.AddCalendarMonths(completedAt, 1)
	}
	return utils.AddCalendarYears(completedAt, 1)
}
