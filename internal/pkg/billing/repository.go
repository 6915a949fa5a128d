package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shipnowhq/shipnow/app/models"
)

// Repository is the persistence surface of the billing core. All writes that
// must be atomic run through Transaction, which hands the callback a
// repository bound to the transaction.
type Repository interface {
	GetEvent(platform, eventID string) (*models.PaymentEvent, error)
	UpsertEventPending(event *models.PaymentEvent) error
	MarkEventProcessed(platform, eventID, status, errMsg string, refs EventRefs) error

	CreateOrder(order *models.Order) error
	GetOrder(id string) (*models.Order, error)
	SetOrderSession(orderID, sessionID string) error
	MarkOrderCompleted(orderID, sessionID, customerID string, amount int64, currency string, at time.Time) error
	MarkOrderRefunded(platform, sessionID string, at time.Time) (*models.Order, error)
	LatestOrderWithCustomer(userID uint, platform string) (*models.Order, error)
	LatestCompletedOneTimeOrder(userID uint, monthlyCutoff, annualCutoff time.Time) (*models.Order, error)
	ListCompletedOrders(userID uint) ([]models.Order, error)

	GetSubscription(platform, platformSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	SaveSubscription(sub *models.Subscription) error
	LatestLiveSubscription(userID uint, now, monthlyCutoff, annualCutoff time.Time) (*models.Subscription, error)

	GetUser(id uint) (*models.User, error)

	Transaction(fn func(Repository) error) error
}

// EventRefs are the local rows an event resolved to, stored on the event row
// for traceability.
type EventRefs struct {
	OrderID        string
	SubscriptionID string
	UserID         uint
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository wraps a gorm handle in the billing Repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetEvent(platform, eventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.Where("platform = ? AND event_id = ?", platform, eventID).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpsertEventPending records the event before processing starts. Redelivered
// events hit the unique (platform, event_id) index and update in place, so a
// retry of a FAILED event flips it back to PENDING.
func (r *gormRepository) UpsertEventPending(event *models.PaymentEvent) error {
	event.Status = models.EventStatusPending
	event.ProcessedAt = nil
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "event_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":       models.EventStatusPending,
			"error":        "",
			"payload":      event.Payload,
			"processed_at": nil,
			"updated_at":   time.Now().UTC(),
		}),
	}).Create(event).Error
}

func (r *gormRepository) MarkEventProcessed(platform, eventID, status, errMsg string, refs EventRefs) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"error":        errMsg,
		"processed_at": &now,
	}
	if refs.OrderID != "" {
		updates["order_id"] = refs.OrderID
	}
	if refs.SubscriptionID != "" {
		updates["subscription_id"] = refs.SubscriptionID
	}
	if refs.UserID != 0 {
		updates["user_id"] = refs.UserID
	}
	return r.db.Model(&models.PaymentEvent{}).
		Where("platform = ? AND event_id = ?", platform, eventID).
		Updates(updates).Error
}

func (r *gormRepository) CreateOrder(order *models.Order) error {
	return r.db.Create(order).Error
}

func (r *gormRepository) GetOrder(id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) SetOrderSession(orderID, sessionID string) error {
	return r.db.Model(&models.Order{}).
		Where("id = ?", orderID).
		Update("session_id", sessionID).Error
}

func (r *gormRepository) MarkOrderCompleted(orderID, sessionID, customerID string, amount int64, currency string, at time.Time) error {
	updates := map[string]interface{}{
		"status":       models.OrderStatusCompleted,
		"completed_at": &at,
	}
	if sessionID != "" {
		updates["session_id"] = sessionID
	}
	if customerID != "" {
		updates["platform_customer_id"] = customerID
	}
	if amount > 0 {
		updates["amount"] = amount
	}
	if currency != "" {
		updates["currency"] = currency
	}
	res := r.db.Model(&models.Order{}).Where("id = ?", orderID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *gormRepository) MarkOrderRefunded(platform, sessionID string, at time.Time) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("platform = ? AND session_id = ?", platform, sessionID).First(&order).Error
	if err != nil {
		return nil, err
	}
	err = r.db.Model(&order).Updates(map[string]interface{}{
		"status":      models.OrderStatusRefunded,
		"refunded_at": &at,
	}).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) LatestOrderWithCustomer(userID uint, platform string) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("user_id = ? AND platform = ? AND platform_customer_id <> ''", userID, platform).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LatestCompletedOneTimeOrder scans bounded windows, one per plan interval,
// instead of the whole order history. The cutoffs always exceed the longest
// access period of the interval, so the bound never hides a valid purchase.
func (r *gormRepository) LatestCompletedOneTimeOrder(userID uint, monthlyCutoff, annualCutoff time.Time) (*models.Order, error) {
	var order models.Order
	err := r.db.Where(
		"user_id = ? AND status = ? AND product_type = ? AND plan_type <> ''",
		userID, models.OrderStatusCompleted, models.ProductTypeOneTime,
	).
		Where(
			"(plan_interval = ? AND completed_at > ?) OR (plan_interval <> ? AND completed_at > ?)",
			models.PlanIntervalMonthly, monthlyCutoff, models.PlanIntervalMonthly, annualCutoff,
		).
		Order("completed_at DESC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) ListCompletedOrders(userID uint) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]string{models.OrderStatusCompleted, models.OrderStatusRefunded}).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (r *gormRepository) GetSubscription(platform, platformSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("platform = ? AND platform_subscription_id = ?", platform, platformSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertSubscription inserts or updates by (platform, platform_subscription_id).
// The caller decides the activated_at value; it is written as given, so the
// set-once rule is enforced by carrying the existing value forward.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "platform_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "order_id", "platform_customer_id", "price_id", "status",
			"plan_type", "plan_interval", "current_period_start", "current_period_end",
			"trial_start", "trial_end", "cancel_at_period_end", "cancel_reason",
			"previous_attributes", "activated_at", "canceled_at", "last_event_at",
			"updated_at",
		}),
	}).Create(sub).Error
	if err != nil {
		return err
	}
	// Re-read so the caller sees the row id after a conflict update.
	var saved models.Subscription
	err = r.db.Where("platform = ? AND platform_subscription_id = ?", sub.Platform, sub.PlatformSubscriptionID).
		First(&saved).Error
	if err != nil {
		return err
	}
	*sub = saved
	return nil
}

func (r *gormRepository) SaveSubscription(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// LatestLiveSubscription returns the newest subscription that still grants
// access at the given instant. The expiry check runs in SQL so a stale live
// row with an elapsed period cannot shadow an older still-valid one.
func (r *gormRepository) LatestLiveSubscription(userID uint, now, monthlyCutoff, annualCutoff time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ? AND status IN ?", userID,
		[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Where(
			"(plan_interval = ? AND created_at > ?) OR (plan_interval <> ? AND created_at > ?)",
			models.PlanIntervalMonthly, monthlyCutoff, models.PlanIntervalMonthly, annualCutoff,
		).
		Where(
			"(status = ? AND trial_end > ?) OR (status <> ? AND current_period_end > ?)",
			models.SubscriptionStatusTrialing, now, models.SubscriptionStatusTrialing, now,
		).
		Order("created_at DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetUser(id uint) (*models.User, error) {
	return models.FindUserByID(r.db, id)
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}
