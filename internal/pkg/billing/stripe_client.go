package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/shipnowhq/shipnow/internal/pkg/env"
)

// StripeClient implements ProviderClient against the Stripe API.
type StripeClient struct {
	webhookSecret string
}

// NewStripeClientFromEnv configures the global Stripe key and returns a
// client bound to the configured webhook signing secret.
func NewStripeClientFromEnv() *StripeClient {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &StripeClient{
		webhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	}
}

func (c *StripeClient) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return event, nil
}

func (c *StripeClient) CreateCheckoutSession(params SessionParams) (*stripe.CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(params.Mode),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(params.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	if params.ClientReferenceID != "" {
		p.ClientReferenceID = stripe.String(params.ClientReferenceID)
	}
	if params.CustomerID != "" {
		p.Customer = stripe.String(params.CustomerID)
	} else if params.CustomerEmail != "" {
		p.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	if len(params.SubscriptionMetadata) > 0 {
		p.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: params.SubscriptionMetadata,
		}
	}

	return checkoutsession.New(p)
}

func (c *StripeClient) CreatePortalSession(customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	return portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
}

func (c *StripeClient) CreateCustomer(email string, userID uint) (*stripe.Customer, error) {
	p := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	p.AddMetadata(MetaUserID, fmt.Sprintf("%d", userID))

	return customer.New(p)
}

func (c *StripeClient) FindCustomerByUserID(userID uint) (*stripe.Customer, error) {
	iter := customer.Search(&stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['%s']:'%d'", MetaUserID, userID),
		},
	})
	for iter.Next() {
		return iter.Customer(), nil
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

func (c *StripeClient) SessionsByPaymentIntent(paymentIntentID string) ([]*stripe.CheckoutSession, error) {
	iter := checkoutsession.List(&stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	})
	var sessions []*stripe.CheckoutSession
	for iter.Next() {
		sessions = append(sessions, iter.CheckoutSession())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}
