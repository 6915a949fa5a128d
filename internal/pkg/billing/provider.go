package billing

import (
	"github.com/stripe/stripe-go/v82"
)

// SessionParams describes the checkout session the provider should create.
// The service fills this from validated CheckoutParams plus resolved state.
type SessionParams struct {
	Mode                 string
	PriceID              string
	CustomerID           string
	CustomerEmail        string
	ClientReferenceID    string
	SuccessURL           string
	CancelURL            string
	Metadata             map[string]string
	SubscriptionMetadata map[string]string
}

// ProviderClient is the remote billing provider surface the service depends
// on. The production implementation wraps the Stripe SDK; tests swap in a
// fake so reconciliation runs against local state only.
type ProviderClient interface {
	// ConstructEvent verifies the webhook signature and decodes the event.
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)

	// CreateCheckoutSession opens a hosted checkout session.
	CreateCheckoutSession(params SessionParams) (*stripe.CheckoutSession, error)

	// CreatePortalSession opens a customer self-service portal session.
	CreatePortalSession(customerID, returnURL string) (*stripe.BillingPortalSession, error)

	// CreateCustomer creates a provider customer tagged with the local user id.
	CreateCustomer(email string, userID uint) (*stripe.Customer, error)

	// FindCustomerByUserID searches provider customers by the local user id
	// stored in customer metadata. Returns (nil, nil) when none exists.
	FindCustomerByUserID(userID uint) (*stripe.Customer, error)

	// SessionsByPaymentIntent lists checkout sessions tied to a payment
	// intent, used to trace refunds back to the originating order.
	SessionsByPaymentIntent(paymentIntentID string) ([]*stripe.CheckoutSession, error)
}
