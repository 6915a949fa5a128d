package billing

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/shipnowhq/shipnow/app/models"
)

var validate = validator.New()

// CreateCheckoutSession opens a hosted checkout for the given price. A local
// PENDING order is created first so that its id can travel through the
// provider as the client reference and lead the completion event back here.
func (s *Service) CreateCheckoutSession(params CheckoutParams) (*CheckoutResult, error) {
	if err := validate.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid checkout request: %w", err)
	}

	price, err := s.prices.Lookup(params.PriceID)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUser(params.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", params.UserID, err)
	}

	var order *models.Order
	var customerID string
	err = s.repo.Transaction(func(tx Repository) error {
		customerID, err = s.getOrCreateCustomer(tx, user)
		if err != nil {
			return err
		}

		order = &models.Order{
			UserID:             user.ID,
			Amount:             price.Amount,
			Currency:           price.Currency,
			Status:             models.OrderStatusPending,
			ProductType:        price.ProductType,
			PlanType:           price.PlanType,
			PlanInterval:       price.PlanInterval,
			Platform:           models.PaymentPlatformStripe,
			PlatformCustomerID: customerID,
			PriceID:            price.ID,
		}
		return tx.CreateOrder(order)
	})
	if err != nil {
		return nil, err
	}

	mode := string(stripe.CheckoutSessionModePayment)
	if price.ProductType == models.ProductTypeSubscription {
		mode = string(stripe.CheckoutSessionModeSubscription)
	}
	metadata := map[string]string{
		MetaUserID:  strconv.FormatUint(uint64(user.ID), 10),
		MetaOrderID: order.ID,
		MetaPriceID: price.ID,
		MetaMode:    mode,
	}

	sessionParams := SessionParams{
		Mode:              mode,
		PriceID:           price.ID,
		CustomerID:        customerID,
		CustomerEmail:     user.Email,
		ClientReferenceID: order.ID,
		SuccessURL:        params.SuccessURL,
		CancelURL:         params.CancelURL,
		Metadata:          metadata,
	}
	if price.ProductType == models.ProductTypeSubscription {
		// Stamped onto the subscription object so its webhook events carry
		// the local references without another lookup.
		sessionParams.SubscriptionMetadata = metadata
	}

	session, err := s.provider.CreateCheckoutSession(sessionParams)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	if err := s.repo.SetOrderSession(order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("attach session to order %s: %w", order.ID, err)
	}

	log.Printf("[Billing] checkout session %s opened for user %d (order %s, %s/%s)",
		session.ID, user.ID, order.ID, price.PlanType, price.PlanInterval)
	return &CheckoutResult{SessionID: session.ID, SessionURL: session.URL}, nil
}

// getOrCreateCustomer resolves the provider customer for a user: a prior
// order's stored customer id first, then a metadata search at the provider,
// and only then a fresh customer. Concurrent checkouts by the same new user
// can still race into two provider customers; the completion event wins and
// later checkouts reuse its customer id.
func (s *Service) getOrCreateCustomer(tx Repository, user *models.User) (string, error) {
	prior, err := tx.LatestOrderWithCustomer(user.ID, models.PaymentPlatformStripe)
	if err == nil && prior.PlatformCustomerID != "" {
		return prior.PlatformCustomerID, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("look up prior orders: %w", err)
	}

	remote, err := s.provider.FindCustomerByUserID(user.ID)
	if err != nil {
		return "", fmt.Errorf("search customer for user %d: %w", user.ID, err)
	}
	if remote != nil {
		return remote.ID, nil
	}

	created, err := s.provider.CreateCustomer(user.Email, user.ID)
	if err != nil {
		return "", fmt.Errorf("create customer for user %d: %w", user.ID, err)
	}
	return created.ID, nil
}
