package billing

import (
	"fmt"
	"log"

	"github.com/shipnowhq/shipnow/app/models"
	"github.com/shipnowhq/shipnow/internal/pkg/mail"
)

// Hooks receives subscription lifecycle side effects after the row has been
// persisted. Implementations must tolerate redelivery: the reconciler only
// fires hooks for changes listed in the event's previous_attributes snapshot,
// but a redelivered event carries the same snapshot again.
type Hooks interface {
	OnStatusChange(sub *models.Subscription, change SubscriptionChange)
	OnPlanChange(sub *models.Subscription, change SubscriptionChange)
	OnCancelToggle(sub *models.Subscription, change SubscriptionChange)
}

// LogHooks logs every transition and sends a payment reminder when a
// subscription falls past due. LookupEmail is optional; without it no mail
// goes out.
type LogHooks struct {
	LookupEmail func(userID uint) (string, error)
}

func (h *LogHooks) OnStatusChange(sub *models.Subscription, change SubscriptionChange) {
	log.Printf("[Billing] subscription %d status %s -> %s (user %d)", sub.ID, change.From, change.To, sub.UserID)

	if sub.Status != models.SubscriptionStatusPastDue || h.LookupEmail == nil {
		return
	}
	email, err := h.LookupEmail(sub.UserID)
	if err != nil || email == "" {
		log.Printf("[Billing] past-due reminder skipped for user %d: %v", sub.UserID, err)
		return
	}
	body := fmt.Sprintf("<p>Your subscription payment failed. Please update your payment method to keep your %s plan.</p>", sub.PlanType)
	if err := mail.SendMail(email, "Payment failed - action required", body); err != nil {
		log.Printf("[Billing] past-due reminder to %s failed: %v", email, err)
	}
}

func (h *LogHooks) OnPlanChange(sub *models.Subscription, change SubscriptionChange) {
	log.Printf("[Billing] subscription %d plan %s -> %s (user %d)", sub.ID, change.From, change.To, sub.UserID)
}

func (h *LogHooks) OnCancelToggle(sub *models.Subscription, change SubscriptionChange) {
	log.Printf("[Billing] subscription %d cancel_at_period_end %s -> %s (user %d)", sub.ID, change.From, change.To, sub.UserID)
}
