package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/shipnowhq/shipnow/app/models"
	"github.com/shipnowhq/shipnow/internal/pkg/utils"
)

// Service is the reconciliation core. It turns verified provider events into
// local order and subscription state, exactly once per event id, and exposes
// the checkout and portal flows.
type Service struct {
	repo     Repository
	provider ProviderClient
	prices   *PriceTable
	hooks    Hooks
}

func NewService(repo Repository, provider ProviderClient, prices *PriceTable, hooks Hooks) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		prices:   prices,
		hooks:    hooks,
	}
}

// NewServiceFromDB wires the production service: gorm repository, Stripe
// client and prices from env, log-and-mail hooks.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		NewRepository(db),
		NewStripeClientFromEnv(),
		NewPriceTableFromEnv(),
		&LogHooks{
			LookupEmail: func(userID uint) (string, error) {
				user, err := models.FindUserByID(db, userID)
				if err != nil {
					return "", err
				}
				return user.Email, nil
			},
		},
	)
}

// Prices exposes the immutable price table for the pricing page.
func (s *Service) Prices() *PriceTable {
	return s.prices
}

// VerifyWebhook checks the signature and decodes the raw webhook body.
func (s *Service) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return s.provider.ConstructEvent(payload, sigHeader)
}

// HandleEvent reconciles one verified event. Redeliveries of an event that
// already succeeded are no-ops. Failed events are recorded FAILED and the
// error is returned so the provider retries; events that cannot be matched to
// local state (ErrMissingReference) are recorded FAILED but swallowed, since
// retrying cannot resolve them.
func (s *Service) HandleEvent(event stripe.Event) error {
	platform := models.PaymentPlatformStripe

	if existing, err := s.repo.GetEvent(platform, event.ID); err == nil &&
		existing.Status == models.EventStatusSuccess {
		log.Printf("[Billing] event %s already handled, skipping", event.ID)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	record := &models.PaymentEvent{
		Platform: platform,
		EventID:  event.ID,
		Type:     string(event.Type),
		Payload:  string(payload),
	}
	if err := s.repo.UpsertEventPending(record); err != nil {
		return fmt.Errorf("record event %s: %w", event.ID, err)
	}

	refs, err := s.dispatch(event)
	if err == nil {
		return s.repo.MarkEventProcessed(platform, event.ID, models.EventStatusSuccess, "", refs)
	}

	if markErr := s.repo.MarkEventProcessed(platform, event.ID, models.EventStatusFailed, err.Error(), refs); markErr != nil {
		log.Printf("[Billing] failed to mark event %s: %v", event.ID, markErr)
	}
	if errors.Is(err, ErrMissingReference) {
		// Retrying cannot attach the event to a row we do not have. Keep it
		// on file for manual reconciliation and acknowledge the delivery.
		log.Printf("[Billing] event %s (%s) needs manual reconciliation: %v", event.ID, event.Type, err)
		return nil
	}
	return err
}

func (s *Service) dispatch(event stripe.Event) (EventRefs, error) {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionUpsert(event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(event)
	case EventChargeRefunded:
		return s.handleChargeRefunded(event)
	default:
		log.Printf("[Billing] ignoring event type %s (%s)", event.Type, event.ID)
		return EventRefs{}, nil
	}
}

func (s *Service) handleCheckoutCompleted(event stripe.Event) (EventRefs, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return EventRefs{}, fmt.Errorf("parse checkout session: %w", err)
	}

	orderID := cs.ClientReferenceID
	if orderID == "" {
		orderID = cs.Metadata[MetaOrderID]
	}
	if orderID == "" {
		return EventRefs{}, fmt.Errorf("checkout session %s has no client reference: %w", cs.ID, ErrMissingReference)
	}

	order, err := s.repo.GetOrder(orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EventRefs{}, fmt.Errorf("order %s not found: %w", orderID, ErrMissingReference)
	}
	if err != nil {
		return EventRefs{}, fmt.Errorf("load order %s: %w", orderID, err)
	}

	refs := EventRefs{OrderID: order.ID, UserID: order.UserID}
	if order.Status == models.OrderStatusCompleted {
		return refs, nil
	}

	var customerID string
	if cs.Customer != nil {
		customerID = cs.Customer.ID
	}
	currency := strings.ToUpper(string(cs.Currency))

	eventTime := utils.UnixToUTC(event.Created)
	if err := s.repo.MarkOrderCompleted(order.ID, cs.ID, customerID, cs.AmountTotal, currency, eventTime); err != nil {
		return refs, fmt.Errorf("complete order %s: %w", order.ID, err)
	}
	log.Printf("[Billing] order %s completed for user %d (session %s)", order.ID, order.UserID, cs.ID)
	return refs, nil
}

// subscriptionPayload is the slice of the provider subscription object the
// reconciler needs. Period fields live at the top level on older API
// versions and on the line item on newer ones; both are read.
type subscriptionPayload struct {
	ID                  string            `json:"id"`
	Status              string            `json:"status"`
	Customer            string            `json:"customer"`
	Metadata            map[string]string `json:"metadata"`
	CancelAtPeriodEnd   bool              `json:"cancel_at_period_end"`
	CanceledAt          int64             `json:"canceled_at"`
	CurrentPeriodStart  int64             `json:"current_period_start"`
	CurrentPeriodEnd    int64             `json:"current_period_end"`
	TrialStart          int64             `json:"trial_start"`
	TrialEnd            int64             `json:"trial_end"`
	CancellationDetails struct {
		Reason  string `json:"reason"`
		Comment string `json:"comment"`
	} `json:"cancellation_details"`
	Plan struct {
		ID string `json:"id"`
	} `json:"plan"`
	Items struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (p *subscriptionPayload) priceID() string {
	if len(p.Items.Data) > 0 && p.Items.Data[0].Price.ID != "" {
		return p.Items.Data[0].Price.ID
	}
	return p.Plan.ID
}

func (p *subscriptionPayload) periodStart() int64 {
	if p.CurrentPeriodStart != 0 {
		return p.CurrentPeriodStart
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodStart
	}
	return 0
}

func (p *subscriptionPayload) periodEnd() int64 {
	if p.CurrentPeriodEnd != 0 {
		return p.CurrentPeriodEnd
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

func (s *Service) handleSubscriptionUpsert(event stripe.Event) (EventRefs, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return EventRefs{}, fmt.Errorf("parse subscription: %w", err)
	}
	if payload.ID == "" {
		return EventRefs{}, fmt.Errorf("subscription event without id: %w", ErrMissingReference)
	}

	price, err := s.prices.Lookup(payload.priceID())
	if err != nil {
		return EventRefs{}, err
	}

	platform := models.PaymentPlatformStripe
	eventTime := utils.UnixToUTC(event.Created)

	existing, err := s.repo.GetSubscription(platform, payload.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return EventRefs{}, fmt.Errorf("load subscription %s: %w", payload.ID, err)
	}
	if existing == nil && string(event.Type) == EventSubscriptionUpdated {
		// An update for a subscription we never saw created. There is no row
		// to update and retrying will not produce one.
		log.Printf("[Billing] update for unknown subscription %s ignored (event %s)", payload.ID, event.ID)
		return EventRefs{SubscriptionID: payload.ID}, nil
	}
	// Only strictly older events are stale. Provider timestamps have second
	// resolution, so a created and its first update often tie; exact replays
	// are already caught by the event-id gate.
	if existing != nil && existing.LastEventAt != nil && eventTime.Before(*existing.LastEventAt) {
		log.Printf("[Billing] stale %s for subscription %s discarded (event %s)", event.Type, payload.ID, event.ID)
		return EventRefs{SubscriptionID: payload.ID, UserID: existing.UserID}, nil
	}

	userID, orderID, err := s.resolveSubscriptionOwner(&payload, existing)
	if err != nil {
		return EventRefs{}, err
	}

	status := strings.ToUpper(payload.Status)
	sub := models.Subscription{
		UserID:                 userID,
		OrderID:                orderID,
		Platform:               platform,
		PlatformSubscriptionID: payload.ID,
		PlatformCustomerID:     payload.Customer,
		PriceID:                payload.priceID(),
		Status:                 status,
		PlanType:               price.PlanType,
		PlanInterval:           price.PlanInterval,
		CurrentPeriodStart:     utils.UnixToUTCPtr(payload.periodStart()),
		CurrentPeriodEnd:       utils.UnixToUTCPtr(payload.periodEnd()),
		TrialStart:             utils.UnixToUTCPtr(payload.TrialStart),
		TrialEnd:               utils.UnixToUTCPtr(payload.TrialEnd),
		CancelAtPeriodEnd:      payload.CancelAtPeriodEnd,
		CanceledAt:             utils.UnixToUTCPtr(payload.CanceledAt),
		LastEventAt:            &eventTime,
	}

	// activatedAt is written exactly once, on the first transition into a
	// live status. The existing value is carried forward on every update.
	if existing != nil && existing.ActivatedAt != nil {
		sub.ActivatedAt = existing.ActivatedAt
	} else if sub.IsLive() {
		sub.ActivatedAt = &eventTime
	}
	if existing != nil {
		if sub.CancelReason == "" {
			sub.CancelReason = existing.CancelReason
		}
	}

	var changes []SubscriptionChange
	if string(event.Type) == EventSubscriptionUpdated && event.Data != nil {
		changes = analyzeSubscriptionChanges(event.Data.PreviousAttributes, payload.Status, payload.priceID(), payload.CancelAtPeriodEnd)
		if len(event.Data.PreviousAttributes) > 0 {
			if prev, err := json.Marshal(event.Data.PreviousAttributes); err == nil {
				sub.PreviousAttributes = string(prev)
			}
		}
	}

	if err := s.repo.UpsertSubscription(&sub); err != nil {
		return EventRefs{}, fmt.Errorf("upsert subscription %s: %w", payload.ID, err)
	}

	s.fireHooks(&sub, changes)

	log.Printf("[Billing] subscription %s %s for user %d (%s/%s, status %s)",
		payload.ID, event.Type, userID, price.PlanType, price.PlanInterval, status)
	return EventRefs{SubscriptionID: payload.ID, OrderID: orderID, UserID: userID}, nil
}

func (s *Service) handleSubscriptionDeleted(event stripe.Event) (EventRefs, error) {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return EventRefs{}, fmt.Errorf("parse subscription: %w", err)
	}
	if payload.ID == "" {
		return EventRefs{}, fmt.Errorf("subscription event without id: %w", ErrMissingReference)
	}

	platform := models.PaymentPlatformStripe
	eventTime := utils.UnixToUTC(event.Created)

	existing, err := s.repo.GetSubscription(platform, payload.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return EventRefs{}, fmt.Errorf("subscription %s not found: %w", payload.ID, ErrMissingReference)
	}
	if err != nil {
		return EventRefs{}, fmt.Errorf("load subscription %s: %w", payload.ID, err)
	}

	refs := EventRefs{SubscriptionID: existing.PlatformSubscriptionID, OrderID: existing.OrderID, UserID: existing.UserID}
	if existing.LastEventAt != nil && eventTime.Before(*existing.LastEventAt) {
		log.Printf("[Billing] stale %s for subscription %s discarded (event %s)", event.Type, payload.ID, event.ID)
		return refs, nil
	}

	prevStatus := existing.Status
	existing.Status = models.SubscriptionStatusCanceled
	existing.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	existing.CancelReason = payload.CancellationDetails.Reason
	if payload.CancellationDetails.Comment != "" {
		existing.CancelReason = payload.CancellationDetails.Reason + ": " + payload.CancellationDetails.Comment
	}
	if at := utils.UnixToUTCPtr(payload.CanceledAt); at != nil {
		existing.CanceledAt = at
	} else {
		existing.CanceledAt = &eventTime
	}
	existing.LastEventAt = &eventTime

	if err := s.repo.SaveSubscription(existing); err != nil {
		return refs, fmt.Errorf("cancel subscription %s: %w", payload.ID, err)
	}

	if prevStatus != models.SubscriptionStatusCanceled {
		s.fireHooks(existing, []SubscriptionChange{{
			Type: ChangeStatus,
			From: strings.ToLower(prevStatus),
			To:   payload.Status,
		}})
	}

	log.Printf("[Billing] subscription %s canceled for user %d", payload.ID, existing.UserID)
	return refs, nil
}

// handleChargeRefunded traces a refund back to the originating order through
// the charge's payment intent. Charges carry no order reference themselves.
func (s *Service) handleChargeRefunded(event stripe.Event) (EventRefs, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return EventRefs{}, fmt.Errorf("parse charge: %w", err)
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return EventRefs{}, fmt.Errorf("charge %s has no payment intent: %w", charge.ID, ErrMissingReference)
	}

	sessions, err := s.provider.SessionsByPaymentIntent(charge.PaymentIntent.ID)
	if err != nil {
		return EventRefs{}, fmt.Errorf("list sessions for intent %s: %w", charge.PaymentIntent.ID, err)
	}
	if len(sessions) == 0 {
		return EventRefs{}, fmt.Errorf("no checkout session for intent %s: %w", charge.PaymentIntent.ID, ErrMissingReference)
	}

	platform := models.PaymentPlatformStripe
	eventTime := utils.UnixToUTC(event.Created)

	for _, cs := range sessions {
		order, err := s.repo.MarkOrderRefunded(platform, cs.ID, eventTime)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return EventRefs{}, fmt.Errorf("refund order for session %s: %w", cs.ID, err)
		}
		log.Printf("[Billing] order %s refunded for user %d (charge %s)", order.ID, order.UserID, charge.ID)
		return EventRefs{OrderID: order.ID, UserID: order.UserID}, nil
	}
	return EventRefs{}, fmt.Errorf("no order matches sessions of intent %s: %w", charge.PaymentIntent.ID, ErrMissingReference)
}

// resolveSubscriptionOwner finds the local user a subscription belongs to,
// preferring the metadata stamped onto the subscription at checkout, then an
// already stored row.
func (s *Service) resolveSubscriptionOwner(payload *subscriptionPayload, existing *models.Subscription) (uint, string, error) {
	orderID := payload.Metadata[MetaOrderID]
	if orderID == "" && existing != nil {
		orderID = existing.OrderID
	}

	if raw := payload.Metadata[MetaUserID]; raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err == nil && id != 0 {
			return uint(id), orderID, nil
		}
	}
	if existing != nil && existing.UserID != 0 {
		return existing.UserID, orderID, nil
	}
	if orderID != "" {
		order, err := s.repo.GetOrder(orderID)
		if err == nil {
			return order.UserID, orderID, nil
		}
	}
	return 0, "", fmt.Errorf("subscription %s has no user reference: %w", payload.ID, ErrMissingReference)
}

func (s *Service) fireHooks(sub *models.Subscription, changes []SubscriptionChange) {
	if s.hooks == nil {
		return
	}
	for _, change := range changes {
		switch change.Type {
		case ChangeStatus:
			s.hooks.OnStatusChange(sub, change)
		case ChangePlan:
			s.hooks.OnPlanChange(sub, change)
		case ChangeCancel:
			s.hooks.OnCancelToggle(sub, change)
		}
	}
}
